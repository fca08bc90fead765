package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"kvbench/internal/metrics"
	"kvbench/internal/runner"
)

var ErrNoSummaries = errors.New("no summaries found")

// LoadSummaries reads a saved result file for comparison. It accepts a JSON
// run report, an array of run reports, or an array of summaries. Run reports
// contribute their overall summary only, so that workloads match one to one.
func LoadSummaries(path string) ([]metrics.Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	summaries, err := ParseSummaries(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return summaries, nil
}

// ParseSummaries is LoadSummaries on in-memory data
func ParseSummaries(data []byte) ([]metrics.Summary, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrNoSummaries
	}

	var items []json.RawMessage
	if data[0] == '[' {
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, err
		}
	} else {
		items = []json.RawMessage{data}
	}

	var out []metrics.Summary
	for i, item := range items {
		s, err := parseItem(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, ErrNoSummaries
	}
	return out, nil
}

func parseItem(item json.RawMessage) (metrics.Summary, error) {
	var probe struct {
		Overall *json.RawMessage `json:"overall"`
	}
	if err := json.Unmarshal(item, &probe); err != nil {
		return metrics.Summary{}, err
	}

	if probe.Overall != nil {
		var r runner.RunReport
		if err := json.Unmarshal(item, &r); err != nil {
			return metrics.Summary{}, err
		}
		if r.Overall.WorkloadName == "" {
			r.Overall.WorkloadName = r.Workload
		}
		return r.Overall, nil
	}

	var s metrics.Summary
	if err := json.Unmarshal(item, &s); err != nil {
		return metrics.Summary{}, err
	}
	if s.WorkloadName == "" {
		return metrics.Summary{}, errors.New("summary without workload_name")
	}
	return s, nil
}
