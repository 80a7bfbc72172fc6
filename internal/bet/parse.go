package bet

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"lottery-group-bot/internal/model"
)

// Parse and validation errors.
var (
	ErrBetTooSmall = errors.New("bet below minimum")
	ErrBetTooLarge = errors.New("bet over limit")
)

// Canonical wager codes. Latin aliases normalize to these.
const (
	CodeBig          = "大"
	CodeSmall        = "小"
	CodeOdd          = "单"
	CodeEven         = "双"
	CodeBigOdd       = "大单"
	CodeBigEven      = "大双"
	CodeSmallOdd     = "小单"
	CodeSmallEven    = "小双"
	CodeLeopard      = "豹子"
	CodeStraight     = "顺子"
	CodePair         = "对子"
	CodeExtremeBig   = "极大"
	CodeExtremeSmall = "极小"
)

type codeInfo struct {
	kind model.BetKind
	code string
}

// codeAliases maps every accepted spelling to its canonical code.
// Latin aliases are matched case-insensitively. "x" is deliberately
// absent: it is the down-score command, not a 小 alias.
var codeAliases = map[string]codeInfo{
	"大":      {model.BetBigSmall, CodeBig},
	"da":     {model.BetBigSmall, CodeBig},
	"小":      {model.BetBigSmall, CodeSmall},
	"xiao":   {model.BetBigSmall, CodeSmall},
	"单":      {model.BetOddEven, CodeOdd},
	"dan":    {model.BetOddEven, CodeOdd},
	"双":      {model.BetOddEven, CodeEven},
	"shuang": {model.BetOddEven, CodeEven},
	"大单":     {model.BetCombo, CodeBigOdd},
	"dd":     {model.BetCombo, CodeBigOdd},
	"大双":     {model.BetCombo, CodeBigEven},
	"ds":     {model.BetCombo, CodeBigEven},
	"小单":     {model.BetCombo, CodeSmallOdd},
	"xd":     {model.BetCombo, CodeSmallOdd},
	"小双":     {model.BetCombo, CodeSmallEven},
	"xs":     {model.BetCombo, CodeSmallEven},
	"豹子":     {model.BetShape, CodeLeopard},
	"bz":     {model.BetShape, CodeLeopard},
	"顺子":     {model.BetShape, CodeStraight},
	"sz":     {model.BetShape, CodeStraight},
	"对子":     {model.BetShape, CodePair},
	"dz":     {model.BetShape, CodePair},
	"极大":     {model.BetExtreme, CodeExtremeBig},
	"jd":     {model.BetExtreme, CodeExtremeBig},
	"极小":     {model.BetExtreme, CodeExtremeSmall},
	"jx":     {model.BetExtreme, CodeExtremeSmall},
}

// Alternation ordered longest-first so "大单" wins over "大" and "dan"
// over "da".
var betTokenPattern = regexp.MustCompile(
	`(?i)(?:(大单|大双|小单|小双|极大|极小|豹子|顺子|对子|shuang|xiao|dan|bz|sz|dz|jd|jx|dd|ds|xd|xs|da|大|小|单|双)\s*([0-9]+))|(?:(2[0-7]|1[0-9]|[0-9])\s*[压/下]\s*([0-9]+))`)

// TryParse recognizes a wager message. It returns (items, true) when the
// entire message consists of wager tokens, and (nil, false) when the
// message is ordinary chat. Identical codes are accumulated.
func TryParse(text string) ([]model.BetItem, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}
	matches := betTokenPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil, false
	}

	// Every non-space byte must belong to some token, otherwise this is
	// chat that happens to contain a bet-shaped fragment.
	covered := make([]bool, len(text))
	items := make([]model.BetItem, 0, len(matches))
	for _, m := range matches {
		for i := m[0]; i < m[1]; i++ {
			covered[i] = true
		}
		var item model.BetItem
		if m[2] >= 0 {
			alias := strings.ToLower(text[m[2]:m[3]])
			info, ok := codeAliases[alias]
			if !ok {
				return nil, false
			}
			amount, err := strconv.ParseInt(text[m[4]:m[5]], 10, 64)
			if err != nil || amount <= 0 {
				return nil, false
			}
			item = model.BetItem{Kind: info.kind, Code: info.code, Amount: decimal.NewFromInt(amount)}
		} else {
			digit := text[m[6]:m[7]]
			amount, err := strconv.ParseInt(text[m[8]:m[9]], 10, 64)
			if err != nil || amount <= 0 {
				return nil, false
			}
			item = model.BetItem{Kind: model.BetDigit, Code: digit, Amount: decimal.NewFromInt(amount)}
		}
		items = append(items, item)
	}
	for i, c := range covered {
		if !c && !isSpace(text[i]) {
			return nil, false
		}
	}
	return Accumulate(items), true
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == ','
}

// Summary renders items as the short bill form, e.g. "大100 单50".
func Summary(items []model.BetItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, item.Code+item.Amount.String())
	}
	return strings.Join(parts, " ")
}

// Total sums the stake across items.
func Total(items []model.BetItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}
	return total
}

// CommandKind discriminates recognized score/query commands.
type CommandKind int

const (
	CmdNone CommandKind = iota
	CmdUpScore
	CmdDownScore
	CmdQueryBalance
	CmdQueryBill
	CmdCancelBet
)

// Command is a parsed score or query command.
type Command struct {
	Kind   CommandKind
	Amount decimal.Decimal
}

var (
	upScorePattern   = regexp.MustCompile(`^(?:[cC+]|上分?)\s*([0-9]+)$`)
	downScorePattern = regexp.MustCompile(`^(?:[xX-]|下分?)\s*([0-9]+)$`)
)

// ParseCommand recognizes score and query commands. Exact-match queries
// only; anything else returns (Command{}, false) and falls through to the
// wager parser.
func ParseCommand(text string) (Command, bool) {
	text = strings.TrimSpace(text)
	switch text {
	case "1", "查", "余额":
		return Command{Kind: CmdQueryBalance}, true
	case "2":
		return Command{Kind: CmdQueryBill}, true
	case "取消":
		return Command{Kind: CmdCancelBet}, true
	}
	if m := upScorePattern.FindStringSubmatch(text); m != nil {
		return parseAmountCommand(CmdUpScore, m[1])
	}
	if m := downScorePattern.FindStringSubmatch(text); m != nil {
		return parseAmountCommand(CmdDownScore, m[1])
	}
	return Command{}, false
}

func parseAmountCommand(kind CommandKind, digits string) (Command, bool) {
	amount, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || amount <= 0 {
		return Command{}, false
	}
	return Command{Kind: kind, Amount: decimal.NewFromInt(amount)}, true
}
