// Package temporal implements C1: a pure, total function scoring how
// currently relevant a stored fact is, parameterised by its category.
package temporal

import (
	"time"

	"github.com/roo-code/conversation-memory/pkg/memmodel"
)

// Config parameterises the category policies. Every field has a sensible
// default via DefaultConfig; construct with that and override only what
// you need.
type Config struct {
	// InfraMultiplier scales confidence for infrastructure facts, which
	// never decay with age.
	InfraMultiplier float64

	// SupersededScore is the flat score given to a superseded architecture fact.
	SupersededScore float64
	// RecencyFloor is the minimum recency multiplier an un-superseded
	// architecture fact can decay to.
	RecencyFloor float64
	// ArchitectureDecayDays is the age at which the recency multiplier
	// would reach zero absent the floor.
	ArchitectureDecayDays float64

	// DebuggingResolvedScore is the flat score for a resolved debugging fact.
	DebuggingResolvedScore float64
	// StaleDebugScore is the flat score for an unresolved debugging fact
	// older than StaleDebugAfterDays.
	StaleDebugScore float64
	// StaleDebugAfterDays is the strict age threshold past which an
	// unresolved debugging fact is considered stale. Age exactly equal to
	// this threshold is NOT stale — the fact still scores at full confidence.
	StaleDebugAfterDays float64

	// PatternBase scales confidence for pattern facts before decay.
	PatternBase float64
	// PatternDecayFloor is the minimum recency multiplier a pattern fact
	// can decay to.
	PatternDecayFloor float64
	// PatternDecayDays is the age at which the recency multiplier would
	// reach zero absent the floor.
	PatternDecayDays float64

	// UnknownMultiplier scales confidence for any category outside the
	// four known ones.
	UnknownMultiplier float64
}

// DefaultConfig returns the policy defaults from the specification.
func DefaultConfig() Config {
	return Config{
		InfraMultiplier: 1.2,

		SupersededScore:       0.1,
		RecencyFloor:          0.3,
		ArchitectureDecayDays: 90,

		DebuggingResolvedScore: 0.15,
		StaleDebugScore:        0.1,
		StaleDebugAfterDays:    14,

		PatternBase:       0.8,
		PatternDecayFloor: 0.5,
		PatternDecayDays:  180,

		UnknownMultiplier: 0.7,
	}
}

// Scorer scores facts by category-aware recency policy. Stateless and safe
// for concurrent use — Score never mutates the config or the fact.
type Scorer struct {
	cfg Config
}

// New builds a Scorer. A zero Config is replaced with DefaultConfig.
func New(cfg Config) *Scorer {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	return &Scorer{cfg: cfg}
}

// Score returns fact's current relevance under now. Pure and total: every
// input, however degenerate, produces a finite, non-negative number.
func (s *Scorer) Score(fact *memmodel.ConversationFact, now time.Time) float64 {
	conf := fact.EffectiveConfidence()
	age := ageDays(fact.ReferenceTime, now)

	switch fact.Category {
	case memmodel.CategoryInfrastructure:
		return conf * s.cfg.InfraMultiplier

	case memmodel.CategoryArchitecture:
		if fact.SupersededBy != "" {
			return s.cfg.SupersededScore
		}
		recency := 1 - age/s.cfg.ArchitectureDecayDays
		if recency < s.cfg.RecencyFloor {
			recency = s.cfg.RecencyFloor
		}
		return conf * recency

	case memmodel.CategoryDebugging:
		if fact.Resolved {
			return s.cfg.DebuggingResolvedScore
		}
		if age > s.cfg.StaleDebugAfterDays {
			return s.cfg.StaleDebugScore
		}
		return conf

	case memmodel.CategoryPattern:
		recency := 1 - age/s.cfg.PatternDecayDays
		if recency < s.cfg.PatternDecayFloor {
			recency = s.cfg.PatternDecayFloor
		}
		return conf * s.cfg.PatternBase * recency

	default:
		return conf * s.cfg.UnknownMultiplier
	}
}

// ageDays computes the age of referenceTime in days as of now, clamped to
// zero — future-dated facts (referenceTime after now) are treated as age
// zero rather than negative.
func ageDays(referenceTime, now time.Time) float64 {
	if referenceTime.IsZero() {
		return 0
	}
	d := now.Sub(referenceTime).Seconds() / 86400
	if d < 0 {
		return 0
	}
	return d
}
