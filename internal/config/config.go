// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Bot       BotConfig       `mapstructure:"bot"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Groups    GroupsConfig    `mapstructure:"groups"`
	Score     ScoreConfig     `mapstructure:"score"`
	Odds      OddsFileConfig  `mapstructure:"odds"`
	Period    PeriodConfig    `mapstructure:"period"`
	Guess     GuessConfig     `mapstructure:"guess"`
	Streak    StreakConfig    `mapstructure:"streak"`
	Bonus     BonusConfig     `mapstructure:"bonus"`
	Templates TemplateConfig  `mapstructure:"templates"`
	Crypto    CryptoConfig    `mapstructure:"crypto"`
}

// BotConfig holds the chat transport configuration.
type BotConfig struct {
	Token       string `mapstructure:"token"`
	Adapter     string `mapstructure:"adapter"` // "telegram" or "capture"
	CaptureAddr string `mapstructure:"capture_addr"`
	SelfID      string `mapstructure:"self_id"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	FlushInterval   time.Duration `mapstructure:"flush_interval"`
}

// GroupsConfig lists the managed chat groups.
type GroupsConfig struct {
	IDs []string `mapstructure:"ids"`
}

// ScoreConfig bounds up/down-score commands.
type ScoreConfig struct {
	MinScore int64 `mapstructure:"min_score"`
	MaxScore int64 `mapstructure:"max_score"`
}

// OddsFileConfig is the raw odds configuration as loaded from file.
// The bet package converts it into an immutable snapshot.
type OddsFileConfig struct {
	BigSmall     float64            `mapstructure:"big_small"`
	OddEven      float64            `mapstructure:"odd_even"`
	Combo        float64            `mapstructure:"combo"`
	Leopard      float64            `mapstructure:"leopard"`
	Straight     float64            `mapstructure:"straight"`
	Pair         float64            `mapstructure:"pair"`
	ExtremeBig   float64            `mapstructure:"extreme_big"`
	ExtremeSmall float64            `mapstructure:"extreme_small"`
	Digits       map[string]float64 `mapstructure:"digits"` // "0".."27" -> multiplier

	BigMin         int `mapstructure:"big_min"`          // sum >= BigMin is big
	ExtremeBigMin  int `mapstructure:"extreme_big_min"`  // sum >= is extreme big
	ExtremeSmallMax int `mapstructure:"extreme_small_max"` // sum <= is extreme small

	MinBet     int64 `mapstructure:"min_bet"`
	MaxBet     int64 `mapstructure:"max_bet"`
	MaxDigit   int64 `mapstructure:"max_digit_bet"`
	MaxShape   int64 `mapstructure:"max_shape_bet"`
	MaxMessage int64 `mapstructure:"max_message_total"`
}

// PeriodConfig drives the sealing/opening cadence.
type PeriodConfig struct {
	IntervalSeconds  int    `mapstructure:"interval_seconds"`
	SealLeadSeconds  int    `mapstructure:"seal_lead_seconds"`
	ReminderLeads    []int  `mapstructure:"reminder_leads"` // seconds before seal
	BasePeriod       int64  `mapstructure:"base_period"`
	BaseDate         string `mapstructure:"base_date"` // YYYY-MM-DD, local midnight anchor
	DriftSeconds     int    `mapstructure:"drift_seconds"`
	AutoMute         bool   `mapstructure:"auto_mute"`
	AutoAnnounce     bool   `mapstructure:"auto_announce"`
	ProhibitCancel   bool   `mapstructure:"prohibit_cancel"`
}

// GuessConfig drives the guess-the-number side game.
type GuessConfig struct {
	Enabled          bool               `mapstructure:"enabled"`
	Keyword          string             `mapstructure:"keyword"`
	ForbiddenDigits  []int              `mapstructure:"forbidden_digits"`
	MaxGuessPerPeriod int               `mapstructure:"max_guess_per_period"`
	RewardTiers      map[string]float64 `mapstructure:"reward_tiers"` // min balance -> reward
}

// StreakConfig drives consecutive-outcome odds reduction.
type StreakConfig struct {
	Enabled    bool               `mapstructure:"enabled"`
	Categories []string           `mapstructure:"categories"`
	Rules      map[string]float64 `mapstructure:"rules"` // consecutive count -> reduction
}

// BonusConfig drives periodic bonus and turnover rebate credits.
type BonusConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	DailyBonus    int64   `mapstructure:"daily_bonus"`
	RebateRate    float64 `mapstructure:"rebate_rate"` // fraction of turnover
	RebateMinTurn int64   `mapstructure:"rebate_min_turnover"`
}

// TemplateConfig holds operator-editable reply templates.
type TemplateConfig struct {
	BetAccepted      string `mapstructure:"bet_accepted"`
	BetRejected      string `mapstructure:"bet_rejected"`
	BalanceQuery     string `mapstructure:"balance_query"`
	UpScoreNotice    string `mapstructure:"up_score_notice"`
	DownScoreOK      string `mapstructure:"down_score_ok"`
	DownScoreFail    string `mapstructure:"down_score_fail"`
	SealNotice       string `mapstructure:"seal_notice"`
	ReminderNotice   string `mapstructure:"reminder_notice"`
	OpenNotice       string `mapstructure:"open_notice"`
	SettleHeader     string `mapstructure:"settle_header"`
	GuessWin         string `mapstructure:"guess_win"`
}

// CryptoConfig names the key profiles used by the wire codec.
type CryptoConfig struct {
	MessagePassphrase string `mapstructure:"message_passphrase"`
	NicknameKey       string `mapstructure:"nickname_key"`
	NicknameIV        string `mapstructure:"nickname_iv"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase,
	// e.g. BOT_TOKEN, DATABASE_HOST.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - env vars can provide all config.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.adapter", "telegram")
	v.SetDefault("bot.capture_addr", "127.0.0.1:7788")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "lotterybot")
	v.SetDefault("database.name", "lotterybot")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.flush_interval", "5s")

	v.SetDefault("score.min_score", 10)
	v.SetDefault("score.max_score", 100000)

	v.SetDefault("odds.big_small", 1.95)
	v.SetDefault("odds.odd_even", 1.95)
	v.SetDefault("odds.combo", 2.95)
	v.SetDefault("odds.leopard", 30.0)
	v.SetDefault("odds.straight", 6.0)
	v.SetDefault("odds.pair", 3.0)
	v.SetDefault("odds.extreme_big", 9.0)
	v.SetDefault("odds.extreme_small", 9.0)
	v.SetDefault("odds.big_min", 14)
	v.SetDefault("odds.extreme_big_min", 22)
	v.SetDefault("odds.extreme_small_max", 5)
	v.SetDefault("odds.min_bet", 10)
	v.SetDefault("odds.max_bet", 10000)
	v.SetDefault("odds.max_digit_bet", 1000)
	v.SetDefault("odds.max_shape_bet", 2000)
	v.SetDefault("odds.max_message_total", 20000)

	v.SetDefault("period.interval_seconds", 210)
	v.SetDefault("period.seal_lead_seconds", 30)
	v.SetDefault("period.reminder_leads", []int{70, 30, 10})
	v.SetDefault("period.base_period", 3382900)
	v.SetDefault("period.base_date", "2026-01-11")
	v.SetDefault("period.auto_mute", true)
	v.SetDefault("period.auto_announce", true)

	v.SetDefault("guess.enabled", true)
	v.SetDefault("guess.keyword", "猜")
	v.SetDefault("guess.max_guess_per_period", 1)
	v.SetDefault("guess.reward_tiers", map[string]float64{
		"5000": 588, "1000": 188, "500": 20, "100": 8,
	})

	v.SetDefault("streak.enabled", true)
	v.SetDefault("streak.categories", []string{"bigsmall", "oddeven", "combo"})
	v.SetDefault("streak.rules", map[string]float64{
		"3": 0.1, "6": 0.2, "9": 0.3, "12": 0.4,
	})

	v.SetDefault("bonus.enabled", false)
	v.SetDefault("bonus.daily_bonus", 0)
	v.SetDefault("bonus.rebate_rate", 0.0)
	v.SetDefault("bonus.rebate_min_turnover", 0)

	v.SetDefault("templates.bet_accepted", "{nick} 下注成功 {bets} 余额:{balance}")
	v.SetDefault("templates.bet_rejected", "{nick} {reason}")
	v.SetDefault("templates.balance_query", "{at}({short})\n余额:{balance} 流水:{turnover}")
	v.SetDefault("templates.up_score_notice", "收到上分请求 {nick} +{amount}")
	v.SetDefault("templates.down_score_ok", "{nick} 下分成功 {amount} 余额:{balance}")
	v.SetDefault("templates.down_score_fail", "{nick} 下分失败 {reason}")
	v.SetDefault("templates.seal_notice", "==加封盘线==\n以上有钱的都接\n==庄显为准==")
	v.SetDefault("templates.reminder_notice", "--距离封盘时间还有{seconds}秒--")
	v.SetDefault("templates.open_notice", "第{period}期 开始下注")
	v.SetDefault("templates.settle_header", "開:{n1} + {n2} + {n3} = {sum}")
	v.SetDefault("templates.guess_win", "{nick} 猜中 {digit} 奖励 {reward}")

	v.SetDefault("crypto.message_passphrase", "49KdgB8_9=12+3hF")
	v.SetDefault("crypto.nickname_key", "d6ba6647b7c43b79d0e42ceb2790e342")
	v.SetDefault("crypto.nickname_iv", "kgWRyiiODMjSCh0m")
}

// IsManagedGroup checks if a group ID is in the managed list.
func (c *Config) IsManagedGroup(groupID string) bool {
	// Empty list means all groups are managed.
	if len(c.Groups.IDs) == 0 {
		return true
	}
	for _, id := range c.Groups.IDs {
		if id == groupID {
			return true
		}
	}
	return false
}
