// Package streak tracks consecutive draw outcomes per category and maps
// streak length to an odds reduction ("dragon cutting").
package streak

import (
	"sort"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"

	"lottery-group-bot/internal/config"
)

type rule struct {
	minRun    int
	reduction decimal.Decimal
}

// opposite pairs the codes that are mutually exclusive within a category.
// A draw of one zeroes the other's counter; unrelated codes in the same
// category keep counting. 大单 and 大双 both survive a 大 draw, for
// example, because only the exact complementary combo contradicts them.
var opposite = map[string]string{
	"大":  "小",
	"小":  "大",
	"单":  "双",
	"双":  "单",
	"大单": "小双",
	"小双": "大单",
	"大双": "小单",
	"小单": "大双",
}

// Tracker holds a consecutive-hit counter per (category, code). Safe for
// concurrent use; Observe is called once per draw, Reduction on every bet
// capture.
type Tracker struct {
	mu         sync.RWMutex
	enabled    bool
	categories map[string]bool
	rules      []rule // sorted by minRun descending
	counts     map[string]map[string]int
}

// New builds a tracker from configuration. Rule keys are run lengths.
func New(cfg config.StreakConfig) *Tracker {
	t := &Tracker{
		enabled:    cfg.Enabled,
		categories: make(map[string]bool, len(cfg.Categories)),
		counts:     make(map[string]map[string]int),
	}
	for _, c := range cfg.Categories {
		t.categories[c] = true
	}
	for key, red := range cfg.Rules {
		n, err := strconv.Atoi(key)
		if err != nil || n < 1 || red <= 0 {
			continue
		}
		t.rules = append(t.rules, rule{minRun: n, reduction: decimal.NewFromFloat(red)})
	}
	sort.Slice(t.rules, func(i, j int) bool { return t.rules[i].minRun > t.rules[j].minRun })
	return t
}

// Observe feeds one draw's outcome code per category. The drawn code's
// counter extends; its opposite resets to zero; every other code in the
// category is untouched.
func (t *Tracker) Observe(outcomes map[string]string) {
	if !t.enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for category, code := range outcomes {
		if !t.categories[category] {
			continue
		}
		byCode := t.counts[category]
		if byCode == nil {
			byCode = make(map[string]int)
			t.counts[category] = byCode
		}
		byCode[code]++
		if opp, ok := opposite[code]; ok {
			delete(byCode, opp)
		}
	}
}

// Run returns the current consecutive-hit count for a code.
func (t *Tracker) Run(category, code string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.counts[category][code]
}

// Reduction returns the odds reduction for betting the given code in the
// given category right now. Zero while the code's run is below every rule
// threshold.
func (t *Tracker) Reduction(category, code string) decimal.Decimal {
	if !t.enabled {
		return decimal.Zero
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := t.counts[category][code]
	for _, rule := range t.rules {
		if n >= rule.minRun {
			return rule.reduction
		}
	}
	return decimal.Zero
}

// Reset clears all counters, used when the draw feed resynchronizes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts = make(map[string]map[string]int)
}
