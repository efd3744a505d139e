package engine

import (
	"sync"
	"time"
)

// dailyCostTracker enforces the advisory dailyProcessingBudgetUSD cap (§6)
// by tracking estimated spend in a single UTC-day bucket. It never blocks
// a turn from completing — it only gates whether extraction runs; per the
// spec, exceeding the budget means "extraction may be skipped, turn still
// completes successfully".
type dailyCostTracker struct {
	mu        sync.Mutex
	budgetUSD float64
	day       string
	spentUSD  float64
}

func newDailyCostTracker(budgetUSD float64) *dailyCostTracker {
	return &dailyCostTracker{budgetUSD: budgetUSD}
}

// allow reports whether spending estimateUSD more would stay within
// budget, recording it as spent if so. A non-positive budget disables the
// check entirely.
func (c *dailyCostTracker) allow(now time.Time, estimateUSD float64) bool {
	if c.budgetUSD <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	day := now.UTC().Format("2006-01-02")
	if day != c.day {
		c.day = day
		c.spentUSD = 0
	}
	if c.spentUSD+estimateUSD > c.budgetUSD {
		return false
	}
	c.spentUSD += estimateUSD
	return true
}
