package workload

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChooserWorkloadAProportions(t *testing.T) {
	c, err := NewOperationChooser(WorkloadA(), NewSource(7))
	require.NoError(t, err)

	stats := c.Statistics(10000)

	assert.GreaterOrEqual(t, stats[OpRead], 0.45)
	assert.LessOrEqual(t, stats[OpRead], 0.55)
	assert.GreaterOrEqual(t, stats[OpUpdate], 0.45)
	assert.LessOrEqual(t, stats[OpUpdate], 0.55)
	assert.Zero(t, stats[OpInsert])
	assert.Zero(t, stats[OpScan])
}

func TestChooserRejectsInvalidMix(t *testing.T) {
	tests := []struct {
		name string
		mix  OperationMix
	}{
		{"sums to 1.2", OperationMix{Read: 0.7, Update: 0.5}},
		{"sums to 0.5", OperationMix{Read: 0.25, Scan: 0.25}},
		{"negative share", OperationMix{Read: 1.2, Update: -0.2}},
		{"empty", OperationMix{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewOperationChooser(tt.mix, NewSource(1))
			assert.Nil(t, c)
			assert.ErrorIs(t, err, ErrInvalidProportions)
		})
	}
}

func TestChooserAcceptsMixWithinTolerance(t *testing.T) {
	_, err := NewOperationChooser(OperationMix{Read: 0.5, Update: 0.495}, NewSource(1))
	assert.NoError(t, err)
}

func TestChooserFallsBackToRead(t *testing.T) {
	c, err := NewOperationChooser(OperationMix{Update: 0.995}, NewSource(1))
	require.NoError(t, err)

	assert.Equal(t, OpUpdate, c.pick(0.5))
	assert.Equal(t, OpRead, c.pick(0.999))
}

func TestChooserThresholdOrder(t *testing.T) {
	mix := OperationMix{Read: 0.1, Insert: 0.1, Update: 0.2, Delete: 0.2, Scan: 0.2, ReadModifyWrite: 0.2}
	c, err := NewOperationChooser(mix, NewSource(1))
	require.NoError(t, err)

	assert.Equal(t, OpRead, c.pick(0.05))
	assert.Equal(t, OpInsert, c.pick(0.15))
	assert.Equal(t, OpUpdate, c.pick(0.35))
	assert.Equal(t, OpDelete, c.pick(0.55))
	assert.Equal(t, OpScan, c.pick(0.75))
	assert.Equal(t, OpReadModifyWrite, c.pick(0.95))
}

func TestPresetsAreValid(t *testing.T) {
	for _, name := range PresetNames() {
		def, err := Preset(name)
		require.NoError(t, err)
		assert.NoError(t, def.Mix.Validate(), name)
	}

	def, err := Preset("workload_d")
	require.NoError(t, err)
	assert.Equal(t, DistributionLatest, def.Distribution)

	_, err = Preset("z")
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	mix := OperationMix{Read: 2, Update: 2}.Normalize()
	assert.InDelta(t, 0.5, mix.Read, 1e-12)
	assert.InDelta(t, 0.5, mix.Update, 1e-12)
	assert.NoError(t, mix.Validate())

	empty := OperationMix{}.Normalize()
	assert.Equal(t, OperationMix{}, empty)
}

func TestOperationKindText(t *testing.T) {
	for _, kind := range AllOperationKinds {
		text, err := kind.MarshalText()
		require.NoError(t, err)

		var parsed OperationKind
		require.NoError(t, parsed.UnmarshalText(text))
		assert.Equal(t, kind, parsed)
	}

	k, err := ParseOperationKind("rmw")
	require.NoError(t, err)
	assert.Equal(t, OpReadModifyWrite, k)
}

func TestChooserProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("normalized mixes are reproduced within variance", prop.ForAll(
		func(read, update, scan float64, seed uint64) bool {
			mix := OperationMix{Read: read, Update: update, Scan: scan}.Normalize()
			c, err := NewOperationChooser(mix, NewSource(seed))
			if err != nil {
				return false
			}
			stats := c.Statistics(20000)
			for _, kind := range AllOperationKinds {
				diff := stats[kind] - mix.Proportion(kind)
				if diff > 0.03 || diff < -0.03 {
					return false
				}
			}
			return true
		},
		gen.Float64Range(0.01, 1),
		gen.Float64Range(0.01, 1),
		gen.Float64Range(0.01, 1),
		gen.UInt64(),
	))

	properties.TestingRun(t)
}
