// Package history implements spec.md §4.8's playback-progress
// classification: SetLastPosition/SetLastTime both converge on settle,
// which buckets the observed position into
// Begin/End/AsIs using a margin that shrinks as the media gets longer, and
// reports which HistoryType changed so internal/facade can fire
// onHistoryChanged.
package history

import (
	"github.com/silverreel/medialib/internal/model"
)

// Result is what SetLastPosition/SetLastTime report back to the caller,
// per spec.md §4.8.
type Result uint8

const (
	ResultError Result = iota
	ResultBegin
	ResultEnd
	ResultAsIs
)

// Type selects which onHistoryChanged bucket a progress update belongs to.
type Type uint8

const (
	TypeMedia Type = iota
	TypeNetwork
)

// marginFraction implements spec.md §4.8's duration-dependent margin table:
// 5% under 1h, 4% under 2h, 3% under 3h, 2% under 4h, else 1%.
func marginFraction(durationMs int64) float32 {
	const hourMs = int64(3_600_000)
	switch {
	case durationMs < hourMs:
		return 0.05
	case durationMs < 2*hourMs:
		return 0.04
	case durationMs < 3*hourMs:
		return 0.03
	case durationMs < 4*hourMs:
		return 0.02
	default:
		return 0.01
	}
}

// Entry is the (position, time, play_count delta, last_played_date bump)
// update SetLastPosition/SetLastTime computes for the caller to persist.
type Entry struct {
	Position       float32
	TimeMs         int64
	IncrementPlays bool
	BumpLastPlayed bool
}

// Classify buckets position against durationMs's margin, using the
// "strictly less than"/"strictly greater than" boundary rule spec.md's
// Boundaries section specifies: exactly at the margin is AsIs, not Begin
// or End.
func Classify(position float32, durationMs int64) Result {
	if durationMs <= 0 {
		return ResultAsIs
	}
	margin := marginFraction(durationMs)
	if position < margin {
		return ResultBegin
	}
	if position > 1-margin {
		return ResultEnd
	}
	return ResultAsIs
}

// SetLastPosition classifies a fractional position in [0,1], deriving the
// millisecond time from durationMs when known. Per spec.md, when duration
// is unknown (<= 0) the raw position is stored verbatim and TimeMs is left
// at -1, with no Begin/End classification possible.
func SetLastPosition(position float32, durationMs int64) (Entry, Result) {
	if position < 0 || position > 1 {
		return Entry{}, ResultError
	}
	if durationMs <= 0 {
		return Entry{Position: position, TimeMs: -1, BumpLastPlayed: true}, ResultAsIs
	}
	return settle(position, int64(float64(position)*float64(durationMs)), durationMs)
}

// SetLastTime classifies an absolute millisecond time, deriving the
// fractional position from durationMs when known; mirrors SetLastPosition.
func SetLastTime(timeMs int64, durationMs int64) (Entry, Result) {
	if timeMs < 0 {
		return Entry{}, ResultError
	}
	if durationMs <= 0 {
		return Entry{Position: -1, TimeMs: timeMs, BumpLastPlayed: true}, ResultAsIs
	}
	position := float32(float64(timeMs) / float64(durationMs))
	if position > 1 {
		position = 1
	}
	return settle(position, timeMs, durationMs)
}

// settle applies the Begin/End/AsIs classification's side effects: Begin
// and End both reset the stored progress to the sentinel -1/-1 (so a
// finished or not-yet-started media reports no partial position), End
// additionally signals a play_count increment, and both bump
// last_played_date; AsIs stores the observed values verbatim.
func settle(position float32, timeMs int64, durationMs int64) (Entry, Result) {
	switch Classify(position, durationMs) {
	case ResultBegin:
		return Entry{Position: -1, TimeMs: -1, BumpLastPlayed: true}, ResultBegin
	case ResultEnd:
		return Entry{Position: -1, TimeMs: -1, IncrementPlays: true, BumpLastPlayed: true}, ResultEnd
	default:
		return Entry{Position: position, TimeMs: timeMs, BumpLastPlayed: true}, ResultAsIs
	}
}

// TypeFor classifies which HistoryType a media's progress update belongs
// to: spec.md §4.8 fires onHistoryChanged(Network) for stream imports and
// onHistoryChanged(Media) for everything else.
func TypeFor(importType model.MediaType) Type {
	if importType == model.MediaExternal {
		return TypeNetwork
	}
	return TypeMedia
}
