// Package scoring converts raw station measurements into IPPT awards using
// the age-banded scoring tables.
package scoring

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Award classifies a total score.
type Award string

const (
	// AwardFail covers totals below the pass boundary and every degraded result.
	AwardFail Award = "Fail"
	// AwardPass covers totals of 61 and above.
	AwardPass Award = "Pass"
	// AwardSilver covers totals of 75 and above.
	AwardSilver Award = "Silver"
	// AwardGold covers totals of 85 and above.
	AwardGold Award = "Gold"
)

const (
	goldThreshold   = 85
	silverThreshold = 75
	passThreshold   = 61
)

// Status reports how a Result was produced. The award alone collapses
// degraded outcomes into Fail; Status lets callers tell them apart.
type Status string

const (
	// StatusScored marks a genuine table-backed computation.
	StatusScored Status = "scored"
	// StatusInsufficient marks missing dates or an all-zero measurement set.
	StatusInsufficient Status = "insufficient"
	// StatusAgeOutOfRange marks an age outside the table range.
	StatusAgeOutOfRange Status = "age_out_of_range"
	// StatusTableUnavailable marks a failed scoring-table fetch.
	StatusTableUnavailable Status = "table_unavailable"
)

var errMissingTableProvider = errors.New("scoring: table provider is required")

// Input carries the raw measurements and dates for one computation.
type Input struct {
	SitupReps   int
	PushupReps  int
	RunSeconds  int
	TestDate    time.Time
	DateOfBirth time.Time
}

// Result carries station scores, the total, its classification, and the
// financial-year age used for the table lookup.
type Result struct {
	SitupScore  int
	PushupScore int
	RunScore    int
	TotalScore  int
	Award       Award
	Age         int
	Status      Status
}

// Engine computes Results against a TableProvider. Table fetch failures
// degrade to an all-zero Fail rather than propagating.
type Engine struct {
	tables TableProvider
	logger *zap.Logger
}

// NewEngine constructs an Engine over the provided table source.
func NewEngine(tables TableProvider, logger *zap.Logger) (*Engine, error) {
	if tables == nil {
		return nil, errMissingTableProvider
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{tables: tables, logger: logger}, nil
}

// Compute scores one participant's measurements.
func (e *Engine) Compute(ctx context.Context, in Input) Result {
	result := Result{Award: AwardFail, Status: StatusInsufficient}

	if in.TestDate.IsZero() || in.DateOfBirth.IsZero() {
		return result
	}

	result.Age = FinancialYearAge(in.TestDate, in.DateOfBirth)

	if in.SitupReps == 0 && in.PushupReps == 0 && in.RunSeconds == 0 {
		return result
	}

	if result.Age < MinTableAge || result.Age > MaxTableAge {
		result.Status = StatusAgeOutOfRange
		return result
	}

	table, err := e.tables.TableForAge(ctx, result.Age)
	if err != nil {
		e.logger.Warn("scoring table fetch failed",
			zap.Int("age", result.Age),
			zap.Error(err))
		result.Status = StatusTableUnavailable
		return result
	}

	result.SitupScore = lookupReps(table.Situps, in.SitupReps)
	result.PushupScore = lookupReps(table.Pushups, in.PushupReps)
	result.RunScore = lookupRun(table.Run, in.RunSeconds)
	result.TotalScore = result.SitupScore + result.PushupScore + result.RunScore
	result.Award = classify(result.TotalScore)
	result.Status = StatusScored
	return result
}

// lookupReps returns the points of the first band whose threshold the rep
// count meets. Bands arrive in descending threshold order.
func lookupReps(bands []Band, reps int) int {
	for _, band := range bands {
		if reps >= band.Threshold {
			return band.Points
		}
	}
	return 0
}

// lookupRun returns the points of the first band whose threshold the run
// time beats. Bands arrive in ascending threshold order; lower is better.
func lookupRun(bands []Band, seconds int) int {
	for _, band := range bands {
		if seconds <= band.Threshold {
			return band.Points
		}
	}
	return 0
}

func classify(total int) Award {
	switch {
	case total >= goldThreshold:
		return AwardGold
	case total >= silverThreshold:
		return AwardSilver
	case total >= passThreshold:
		return AwardPass
	default:
		return AwardFail
	}
}
