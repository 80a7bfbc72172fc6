package streak

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"lottery-group-bot/internal/config"
)

func testTracker() *Tracker {
	return New(config.StreakConfig{
		Enabled:    true,
		Categories: []string{"bigsmall", "oddeven", "combo"},
		Rules:      map[string]float64{"3": 0.1, "6": 0.2, "9": 0.3},
	})
}

func observeBigOdd(t *Tracker, times int) {
	for i := 0; i < times; i++ {
		t.Observe(map[string]string{"bigsmall": "大", "oddeven": "单", "combo": "大单"})
	}
}

func TestRunExtendsOnRepeat(t *testing.T) {
	tr := testTracker()
	observeBigOdd(tr, 3)

	assert.Equal(t, 3, tr.Run("bigsmall", "大"))
	assert.Equal(t, 3, tr.Run("combo", "大单"))
}

func TestOppositeResetsRun(t *testing.T) {
	tr := testTracker()
	observeBigOdd(tr, 5)

	// Small-even draw contradicts every running code directly.
	tr.Observe(map[string]string{"bigsmall": "小", "oddeven": "双", "combo": "小双"})

	assert.Equal(t, 1, tr.Run("bigsmall", "小"))
	assert.Equal(t, 0, tr.Run("bigsmall", "大"))
	assert.Equal(t, 0, tr.Run("oddeven", "单"))
	assert.Equal(t, 0, tr.Run("combo", "大单"))
}

func TestNonOppositeComboKeepsCounting(t *testing.T) {
	tr := New(config.StreakConfig{
		Enabled:    true,
		Categories: []string{"combo"},
		Rules:      map[string]float64{"3": 0.5},
	})
	for i := 0; i < 3; i++ {
		tr.Observe(map[string]string{"combo": "大双"})
	}
	assert.True(t, tr.Reduction("combo", "大双").Equal(decimal.NewFromFloat(0.5)))

	// 大单 only contradicts 小双; the 大双 run must survive it.
	tr.Observe(map[string]string{"combo": "大单"})

	assert.True(t, tr.Reduction("combo", "大双").Equal(decimal.NewFromFloat(0.5)))
	assert.Equal(t, 3, tr.Run("combo", "大双"))
	assert.Equal(t, 0, tr.Run("combo", "小双"))
	assert.Equal(t, 1, tr.Run("combo", "大单"))
}

func TestReductionThresholds(t *testing.T) {
	tr := testTracker()

	observeBigOdd(tr, 2)
	assert.True(t, tr.Reduction("bigsmall", "大").IsZero(), "run of 2 is below every rule")

	observeBigOdd(tr, 1)
	assert.True(t, tr.Reduction("bigsmall", "大").Equal(decimal.NewFromFloat(0.1)))

	observeBigOdd(tr, 3)
	assert.True(t, tr.Reduction("bigsmall", "大").Equal(decimal.NewFromFloat(0.2)))

	observeBigOdd(tr, 3)
	assert.True(t, tr.Reduction("bigsmall", "大").Equal(decimal.NewFromFloat(0.3)))
}

func TestReductionOnlyForStreakingCode(t *testing.T) {
	tr := testTracker()
	observeBigOdd(tr, 4)

	assert.True(t, tr.Reduction("bigsmall", "小").IsZero(), "betting against the streak keeps full odds")
	assert.True(t, tr.Reduction("oddeven", "双").IsZero())
	assert.True(t, tr.Reduction("bigsmall", "大").Equal(decimal.NewFromFloat(0.1)))
}

func TestUntrackedCategoryIgnored(t *testing.T) {
	tr := testTracker()
	for i := 0; i < 5; i++ {
		tr.Observe(map[string]string{"digit": "14"})
	}
	assert.True(t, tr.Reduction("digit", "14").IsZero())
}

func TestDisabledTrackerIsInert(t *testing.T) {
	tr := New(config.StreakConfig{Enabled: false, Categories: []string{"bigsmall"}, Rules: map[string]float64{"1": 0.5}})
	tr.Observe(map[string]string{"bigsmall": "大"})
	assert.True(t, tr.Reduction("bigsmall", "大").IsZero())
}

func TestReset(t *testing.T) {
	tr := testTracker()
	observeBigOdd(tr, 4)
	tr.Reset()
	assert.Equal(t, 0, tr.Run("bigsmall", "大"))
}
