package workload

import (
	"fmt"
	"sort"
	"strings"
)

// Definition is a named workload: an operation mix plus the key distribution
// used to pick existing records.
type Definition struct {
	Name          string       `json:"name"`
	Description   string       `json:"description"`
	Mix           OperationMix `json:"mix"`
	Distribution  Distribution `json:"distribution"`
	MaxScanLength int          `json:"max_scan_length,omitempty"`
}

var presets = map[string]Definition{
	"a": {
		Name:         "workload_a",
		Description:  "Update heavy: 50% read, 50% update",
		Mix:          WorkloadA(),
		Distribution: DistributionZipfian,
	},
	"b": {
		Name:         "workload_b",
		Description:  "Read mostly: 95% read, 5% update",
		Mix:          WorkloadB(),
		Distribution: DistributionZipfian,
	},
	"c": {
		Name:         "workload_c",
		Description:  "Read only",
		Mix:          WorkloadC(),
		Distribution: DistributionZipfian,
	},
	"d": {
		Name:         "workload_d",
		Description:  "Read latest: 95% read, 5% insert",
		Mix:          WorkloadD(),
		Distribution: DistributionLatest,
	},
	"e": {
		Name:          "workload_e",
		Description:   "Short ranges: 95% scan, 5% insert",
		Mix:           WorkloadE(),
		Distribution:  DistributionZipfian,
		MaxScanLength: 100,
	},
	"f": {
		Name:         "workload_f",
		Description:  "Read-modify-write: 50% read, 50% read-modify-write",
		Mix:          WorkloadF(),
		Distribution: DistributionZipfian,
	},
}

// Preset looks up one of the standard workloads by letter ("a".."f") or by
// full name ("workload_a").
func Preset(name string) (Definition, error) {
	key := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "workload_")
	def, ok := presets[key]
	if !ok {
		return Definition{}, fmt.Errorf("unknown workload preset: %q", name)
	}
	return def, nil
}

// PresetNames returns the preset letters in order
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
