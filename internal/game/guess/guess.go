// Package guess implements the guess-the-sum side game: players submit a
// digit per period and a correct guess earns a balance-tiered reward.
package guess

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"

	"lottery-group-bot/internal/config"
	"lottery-group-bot/internal/model"
)

// Submission errors.
var (
	ErrDisabled       = errors.New("guess game disabled")
	ErrForbiddenDigit = errors.New("digit not allowed")
	ErrGuessLimit     = errors.New("guess limit reached for period")
)

type tier struct {
	minBalance decimal.Decimal
	reward     decimal.Decimal
}

// Win is one correct guess in a settled period.
type Win struct {
	PlayerID string
	Digit    int
}

// Game tracks guesses per period. Submissions are rate-limited per player
// and the reward scales with the winner's balance tier.
type Game struct {
	mu           sync.Mutex
	enabled      bool
	pattern      *regexp.Regexp
	forbidden    map[int]bool
	maxPerPeriod int
	tiers        []tier // sorted by minBalance descending
	guesses      map[int64]map[string][]int
}

// New builds the game from configuration.
func New(cfg config.GuessConfig) *Game {
	g := &Game{
		enabled:      cfg.Enabled,
		forbidden:    make(map[int]bool, len(cfg.ForbiddenDigits)),
		maxPerPeriod: cfg.MaxGuessPerPeriod,
		guesses:      make(map[int64]map[string][]int),
	}
	if g.maxPerPeriod <= 0 {
		g.maxPerPeriod = 1
	}
	keyword := cfg.Keyword
	if keyword == "" {
		keyword = "猜"
	}
	g.pattern = regexp.MustCompile("^" + regexp.QuoteMeta(keyword) + `\s*(2[0-7]|1[0-9]|[0-9])$`)
	for _, d := range cfg.ForbiddenDigits {
		g.forbidden[d] = true
	}
	for key, reward := range cfg.RewardTiers {
		min, err := decimal.NewFromString(key)
		if err != nil || reward <= 0 {
			continue
		}
		g.tiers = append(g.tiers, tier{minBalance: min, reward: decimal.NewFromFloat(reward)})
	}
	sort.Slice(g.tiers, func(i, j int) bool { return g.tiers[i].minBalance.GreaterThan(g.tiers[j].minBalance) })
	return g
}

// TryParse recognizes a guess message, e.g. "猜7".
func (g *Game) TryParse(text string) (int, bool) {
	m := g.pattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	digit, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return digit, true
}

// Submit books one guess for the period.
func (g *Game) Submit(period int64, playerID string, digit int) error {
	if !g.enabled {
		return ErrDisabled
	}
	if g.forbidden[digit] {
		return fmt.Errorf("%w: %d", ErrForbiddenDigit, digit)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	byPlayer, ok := g.guesses[period]
	if !ok {
		byPlayer = make(map[string][]int)
		g.guesses[period] = byPlayer
	}
	if len(byPlayer[playerID]) >= g.maxPerPeriod {
		return fmt.Errorf("%w: period %d", ErrGuessLimit, period)
	}
	byPlayer[playerID] = append(byPlayer[playerID], digit)
	return nil
}

// Winners drains the period and returns every player who guessed the
// draw's sum. Subsequent calls for the same period return nothing.
func (g *Game) Winners(draw model.DrawResult) []Win {
	g.mu.Lock()
	defer g.mu.Unlock()
	byPlayer, ok := g.guesses[draw.Period]
	if !ok {
		return nil
	}
	delete(g.guesses, draw.Period)

	var wins []Win
	for playerID, digits := range byPlayer {
		for _, d := range digits {
			if d == draw.Sum {
				wins = append(wins, Win{PlayerID: playerID, Digit: d})
				break
			}
		}
	}
	return wins
}

// RewardFor returns the prize for a winner with the given balance, by the
// highest tier whose floor the balance clears. Zero below every tier.
func (g *Game) RewardFor(balance decimal.Decimal) decimal.Decimal {
	for _, t := range g.tiers {
		if balance.GreaterThanOrEqual(t.minBalance) {
			return t.reward
		}
	}
	return decimal.Zero
}
