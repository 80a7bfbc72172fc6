package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lottery-group-bot/internal/bet"
	"lottery-group-bot/internal/config"
	"lottery-group-bot/internal/game/guess"
	"lottery-group-bot/internal/ledger"
	"lottery-group-bot/internal/model"
	"lottery-group-bot/internal/period"
	"lottery-group-bot/internal/settle"
	"lottery-group-bot/internal/template"
)

type fakeTransport struct {
	mu    sync.Mutex
	msgs  chan *model.ChatMessage
	sends []string
	muted map[string]bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		msgs:  make(chan *model.ChatMessage, 16),
		muted: make(map[string]bool),
	}
}

func (t *fakeTransport) Start(context.Context) error            { return nil }
func (t *fakeTransport) Stop()                                  {}
func (t *fakeTransport) Messages() <-chan *model.ChatMessage    { return t.msgs }

func (t *fakeTransport) SendText(_ context.Context, _, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sends = append(t.sends, text)
	return nil
}

func (t *fakeTransport) SendImage(_ context.Context, _, path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sends = append(t.sends, "image:"+path)
	return nil
}

func (t *fakeTransport) SetMuted(_ context.Context, groupID string, muted bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.muted[groupID] = muted
	return nil
}

func (t *fakeTransport) sendContaining(sub string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.sends {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func (t *fakeTransport) waitFor(tb testing.TB, sub string) {
	tb.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if t.sendContaining(sub) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	tb.Fatalf("no outbound message containing %q", sub)
}

func (t *fakeTransport) sendCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sends)
}

func testConfig() *config.Config {
	return &config.Config{
		Groups: config.GroupsConfig{IDs: []string{"g-1"}},
		Score:  config.ScoreConfig{MinScore: 10, MaxScore: 100000},
		Period: config.PeriodConfig{
			IntervalSeconds: 3600,
			SealLeadSeconds: 30,
			ReminderLeads:   []int{70, 30, 10},
			BasePeriod:      100,
			BaseDate:        "2026-01-11",
			AutoMute:        true,
			AutoAnnounce:    true,
		},
	}
}

func testOdds() config.OddsFileConfig {
	return config.OddsFileConfig{
		BigSmall: 1.95, OddEven: 1.95, Combo: 2.95,
		Leopard: 30, Straight: 6, Pair: 3, ExtremeBig: 9, ExtremeSmall: 9,
		BigMin: 14, ExtremeBigMin: 22, ExtremeSmallMax: 5,
		MinBet: 10, MaxBet: 10000, MaxDigit: 1000, MaxShape: 2000, MaxMessage: 20000,
	}
}

func testRenderer() *template.Renderer {
	return template.New(config.TemplateConfig{
		BetAccepted:    "{nick} 下注成功 {bets} 余额:{balance}",
		BetRejected:    "{nick} {reason}",
		BalanceQuery:   "{at}({short}) 余额:{balance}",
		UpScoreNotice:  "收到上分请求 {nick} +{amount}",
		DownScoreOK:    "{nick} 下分成功 {amount} 余额:{balance}",
		DownScoreFail:  "{nick} 下分失败 {reason}",
		SealNotice:     "==加封盘线==",
		ReminderNotice: "--距离封盘时间还有{seconds}秒--",
		OpenNotice:     "第{period}期 开始下注",
		SettleHeader:   "開:{n1} + {n2} + {n3} = {sum}",
		GuessWin:       "{nick} 猜中 {digit} 奖励 {reward}",
	})
}

func newController(t *testing.T, cfg *config.Config, tr *fakeTransport) (*Controller, *ledger.Ledger, *settle.Engine, *guess.Game) {
	t.Helper()
	led := ledger.New(nil, decimal.Zero, zerolog.Nop())
	eng := settle.New(led, bet.NewBook(bet.FromConfig(testOdds())), nil, nil, true, zerolog.Nop())
	cal, err := period.NewCalendar(cfg.Period)
	require.NoError(t, err)
	g := guess.New(config.GuessConfig{
		Enabled: true, Keyword: "猜", MaxGuessPerPeriod: 1,
		RewardTiers: map[string]float64{"5000": 588, "1000": 188, "500": 20, "100": 8},
	})
	c := New(Deps{
		Config:    cfg,
		Transport: tr,
		Ledger:    led,
		Engine:    eng,
		Calendar:  cal,
		Renderer:  testRenderer(),
		Guess:     g,
		Logger:    zerolog.Nop(),
	})
	return c, led, eng, g
}

func groupMsg(sender, text string) *model.ChatMessage {
	return &model.ChatMessage{
		GroupID:    "g-1",
		SenderID:   sender,
		SenderNick: "nick-" + sender,
		Text:       text,
		Timestamp:  time.Now(),
	}
}

func TestControllerRunPipeline(t *testing.T) {
	cfg := testConfig()
	// Keep the scheduler quiet so only handler replies reach the transport.
	cfg.Period.AutoAnnounce = false
	cfg.Period.AutoMute = false
	tr := newFakeTransport()
	c, led, _, _ := newController(t, cfg, tr)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	tr.msgs <- groupMsg("p1", "c500")
	tr.waitFor(t, "+500")

	tr.msgs <- groupMsg("p1", "1")
	tr.waitFor(t, "余额:500")

	b := led.Balance("p1")
	assert.True(t, b.Balance.Equal(decimal.NewFromInt(500)))

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("controller did not stop")
	}
}

func TestControllerSettleDrawBroadcastsReport(t *testing.T) {
	cfg := testConfig()
	tr := newFakeTransport()
	c, led, eng, _ := newController(t, cfg, tr)

	led.Deposit("p1", "老王", decimal.NewFromInt(500))
	_, err := eng.PlaceBet(100, groupMsg("p1", "大100"), []model.BetItem{
		{Kind: model.BetBigSmall, Code: bet.CodeBig, Amount: decimal.NewFromInt(100)},
	})
	require.NoError(t, err)

	c.settleDraw(context.Background(), model.NewDrawResult(100, 9, 4, 6))

	assert.True(t, tr.sendContaining("開:9 + 4 + 6 = 19"))
	assert.True(t, tr.sendContaining("中195"))

	b := led.Balance("p1")
	assert.True(t, b.Balance.Equal(decimal.NewFromInt(595)))

	// A second draw for the same period settles nothing and says nothing.
	before := tr.sendCount()
	c.settleDraw(context.Background(), model.NewDrawResult(100, 9, 4, 6))
	assert.Equal(t, before, tr.sendCount())
}

func TestControllerSettleDrawPaysGuessPrize(t *testing.T) {
	cfg := testConfig()
	tr := newFakeTransport()
	c, led, _, g := newController(t, cfg, tr)

	led.Deposit("p2", "小李", decimal.NewFromInt(600))
	require.NoError(t, g.Submit(100, "p2", 19))

	c.settleDraw(context.Background(), model.NewDrawResult(100, 9, 4, 6))

	tr.waitFor(t, "猜中 19 奖励 20")
	b := led.Balance("p2")
	assert.True(t, b.Balance.Equal(decimal.NewFromInt(620)))
}

func TestControllerSealHook(t *testing.T) {
	cfg := testConfig()
	tr := newFakeTransport()
	c, led, eng, _ := newController(t, cfg, tr)

	led.Deposit("p1", "", decimal.NewFromInt(500))
	c.onSeal(model.Period{ID: 100})

	assert.True(t, tr.sendContaining("==加封盘线=="))
	assert.True(t, tr.muted["g-1"])

	_, err := eng.PlaceBet(100, groupMsg("p1", "大100"), []model.BetItem{
		{Kind: model.BetBigSmall, Code: bet.CodeBig, Amount: decimal.NewFromInt(100)},
	})
	assert.ErrorIs(t, err, settle.ErrPeriodSealed)

	c.onOpen(model.Period{ID: 101})
	assert.False(t, tr.muted["g-1"])
	assert.True(t, tr.sendContaining("第101期 开始下注"))
}

func TestControllerTrusteeOffSilencesAnnouncements(t *testing.T) {
	cfg := testConfig()
	cfg.Period.AutoMute = false
	tr := newFakeTransport()
	c, led, eng, _ := newController(t, cfg, tr)

	c.SetTrustee(false)
	assert.False(t, c.TrusteeEnabled())

	c.onOpen(model.Period{ID: 100})
	c.onReminder(model.Period{ID: 100}, 30)
	assert.Zero(t, tr.sendCount())

	// Settlement still happens, only the report is suppressed.
	led.Deposit("p1", "", decimal.NewFromInt(500))
	_, err := eng.PlaceBet(100, groupMsg("p1", "小100"), []model.BetItem{
		{Kind: model.BetBigSmall, Code: bet.CodeSmall, Amount: decimal.NewFromInt(100)},
	})
	require.NoError(t, err)
	c.settleDraw(context.Background(), model.NewDrawResult(100, 9, 4, 6))

	assert.Zero(t, tr.sendCount())
	b := led.Balance("p1")
	assert.True(t, b.Balance.Equal(decimal.NewFromInt(400)))
}

func TestControllerDrawQueueOverflowDrops(t *testing.T) {
	cfg := testConfig()
	tr := newFakeTransport()
	c, _, _, _ := newController(t, cfg, tr)

	for i := 0; i < cap(c.draws)+5; i++ {
		c.SubmitDraw(model.NewDrawResult(int64(100+i), 1, 2, 3))
	}
	assert.Len(t, c.draws, cap(c.draws))
}
