package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyBeginAndEnd(t *testing.T) {
	assert.Equal(t, ResultBegin, Classify(0, 120_000))
	assert.Equal(t, ResultEnd, Classify(0.99, 120_000))
	assert.Equal(t, ResultAsIs, Classify(0.5, 120_000))
}

func TestClassifyShortMediaUsesLargerMargin(t *testing.T) {
	// 30 minute media: 5% margin (under 1h) = 90s -> 4% in is still Begin.
	assert.Equal(t, ResultBegin, Classify(0.04, 30*60_000))
}

func TestClassifyMarginShrinksWithDuration(t *testing.T) {
	// 90 minute media falls in the 2h bucket: 4% margin.
	assert.Equal(t, ResultBegin, Classify(0.03, 90*60_000))
	assert.Equal(t, ResultAsIs, Classify(0.05, 90*60_000))

	// 5 hour media falls past the 4h bucket: 1% margin.
	assert.Equal(t, ResultEnd, Classify(0.995, 5*3_600_000))
	assert.Equal(t, ResultAsIs, Classify(0.98, 5*3_600_000))
}

func TestClassifyAtMarginIsAsIs(t *testing.T) {
	// Exactly at the boundary: spec.md's "strictly less/greater than" rule
	// puts the margin itself in AsIs, not Begin or End.
	assert.Equal(t, ResultAsIs, Classify(0.05, 3_000_000))
}

func TestClassifyUnknownDuration(t *testing.T) {
	assert.Equal(t, ResultAsIs, Classify(0.5, 0))
	assert.Equal(t, ResultAsIs, Classify(0, 0))
}

func TestSetLastPositionDerivesTime(t *testing.T) {
	e, result := SetLastPosition(0.5, 100_000)
	assert.Equal(t, ResultAsIs, result)
	assert.EqualValues(t, 50_000, e.TimeMs)
	assert.InDelta(t, 0.5, e.Position, 0.001)
	assert.False(t, e.IncrementPlays)
	assert.True(t, e.BumpLastPlayed)
}

func TestSetLastTimeDerivesPosition(t *testing.T) {
	e, result := SetLastTime(50_000, 100_000)
	assert.Equal(t, ResultAsIs, result)
	assert.InDelta(t, 0.5, e.Position, 0.001)
}

func TestSetLastPositionBeginResetsProgress(t *testing.T) {
	e, result := SetLastPosition(0.01, 100_000)
	assert.Equal(t, ResultBegin, result)
	assert.EqualValues(t, -1, e.Position)
	assert.EqualValues(t, -1, e.TimeMs)
	assert.False(t, e.IncrementPlays)
	assert.True(t, e.BumpLastPlayed)
}

func TestSetLastTimeEndResetsProgressAndIncrementsPlays(t *testing.T) {
	e, result := SetLastTime(99_500, 100_000)
	assert.Equal(t, ResultEnd, result)
	assert.EqualValues(t, -1, e.Position)
	assert.EqualValues(t, -1, e.TimeMs)
	assert.True(t, e.IncrementPlays)
	assert.True(t, e.BumpLastPlayed)
}

func TestSetLastPositionUnknownDurationStoresRawVerbatim(t *testing.T) {
	e, result := SetLastPosition(0.37, 0)
	assert.Equal(t, ResultAsIs, result)
	assert.InDelta(t, 0.37, e.Position, 0.0001)
	assert.EqualValues(t, -1, e.TimeMs)
}

func TestSetLastTimeUnknownDurationStoresRawVerbatim(t *testing.T) {
	e, result := SetLastTime(12_345, 0)
	assert.Equal(t, ResultAsIs, result)
	assert.EqualValues(t, 12_345, e.TimeMs)
	assert.EqualValues(t, -1, e.Position)
}

func TestSetLastPositionRejectsOutOfRange(t *testing.T) {
	_, result := SetLastPosition(1.5, 100_000)
	assert.Equal(t, ResultError, result)

	_, result = SetLastPosition(-0.5, 100_000)
	assert.Equal(t, ResultError, result)
}

func TestSetLastTimeRejectsNegative(t *testing.T) {
	_, result := SetLastTime(-1, 100_000)
	assert.Equal(t, ResultError, result)
}
