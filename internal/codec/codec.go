package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"lottery-group-bot/internal/config"
	"lottery-group-bot/internal/model"
)

// ErrNotChatMessage marks frames that decoded fine but carry no chat
// content (notifications, receipts). They are skipped, not logged as errors.
var ErrNotChatMessage = errors.New("frame is not a chat message")

// PayloadKind classifies a raw capture frame before field extraction.
type PayloadKind int

const (
	KindUnknown PayloadKind = iota
	KindJSON
	KindBinary
	KindText
)

// Classify inspects raw bytes and decides which extraction path applies.
func Classify(raw []byte) PayloadKind {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return KindUnknown
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return KindJSON
	}
	if len(raw) >= 2 && raw[0] == attachMagicV1[0] {
		return KindBinary
	}
	if utf8.ValidString(trimmed) {
		return KindText
	}
	return KindUnknown
}

// FieldOrigin records how a field value was obtained. Heuristic values
// come from a lexical scrape of an unrecognized payload and must not be
// trusted for money-moving decisions.
type FieldOrigin int

const (
	OriginSchema FieldOrigin = iota
	OriginHeuristic
)

// Field is an extracted value with its provenance.
type Field struct {
	Value  string
	Origin FieldOrigin
}

var kvPattern = regexp.MustCompile(`"([A-Za-z_][A-Za-z0-9_]*)"\s*:\s*(?:"((?:[^"\\]|\\.)*)"|(\d+))`)

// ScrapeFields lexically scans text for "key":"value" pairs without
// requiring a valid JSON document. Every result is tagged heuristic.
// Used when the platform ships a schema we have not seen before.
func ScrapeFields(text string, keys []string) map[string]Field {
	wanted := make(map[string]bool, len(keys))
	for _, k := range keys {
		wanted[k] = true
	}
	out := make(map[string]Field)
	for _, m := range kvPattern.FindAllStringSubmatch(text, -1) {
		key := m[1]
		if len(wanted) > 0 && !wanted[key] {
			continue
		}
		if _, seen := out[key]; seen {
			continue
		}
		val := m[2]
		if val == "" && m[3] != "" {
			val = m[3]
		}
		out[key] = Field{Value: unescapeJSONString(val), Origin: OriginHeuristic}
	}
	return out
}

func unescapeJSONString(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var decoded string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &decoded); err != nil {
		return s
	}
	return decoded
}

// nimEnvelope mirrors the platform's capture frame. Some frames nest the
// interesting fields under "content", some inline them at the top level.
type nimEnvelope struct {
	ResCode int         `json:"rescode"`
	Content *nimContent `json:"content"`
	nimContent
}

type nimContent struct {
	ClientMsgID string `json:"client_msg_id"`
	Time        int64  `json:"time"`
	FromID      string `json:"from_id"`
	FromNick    string `json:"from_nick"`
	ToAccid     string `json:"to_accid"`
	ToType      int    `json:"to_type"`
	TalkID      string `json:"talk_id"`
	MsgType     int    `json:"msg_type"`
	MsgBody     string `json:"msg_body"`
	MsgAttach   string `json:"msg_attach"`
}

const (
	msgTypeText   = 0
	msgTypeCustom = 100
	toTypeTeam    = 1
)

// Decoder turns raw capture frames into ChatMessages. It owns the two key
// profiles and fails closed on anything it cannot make sense of.
type Decoder struct {
	msgProfile  KeyProfile
	nickProfile KeyProfile
	selfID      string
	log         zerolog.Logger
}

// NewDecoder builds a Decoder from the crypto configuration.
func NewDecoder(cfg config.CryptoConfig, selfID string, log zerolog.Logger) (*Decoder, error) {
	nick, err := NewFixedProfile("nickname", cfg.NicknameKey, cfg.NicknameIV)
	if err != nil {
		return nil, fmt.Errorf("nickname profile: %w", err)
	}
	return &Decoder{
		msgProfile:  NewPassphraseProfile("message", cfg.MessagePassphrase),
		nickProfile: nick,
		selfID:      selfID,
		log:         log.With().Str("component", "codec").Logger(),
	}, nil
}

// MessageProfile exposes the message key profile for outbound encryption.
func (d *Decoder) MessageProfile() KeyProfile { return d.msgProfile }

// Decode converts one raw frame into a ChatMessage. Returns
// ErrNotChatMessage for frames without chat content and ErrUndecodable
// for frames that should have decoded but did not.
func (d *Decoder) Decode(raw []byte) (*model.ChatMessage, error) {
	switch Classify(raw) {
	case KindJSON:
		return d.decodeJSON(raw)
	case KindBinary:
		text, err := d.decodeAttachBody(raw)
		if err != nil {
			return nil, err
		}
		return &model.ChatMessage{
			Text:      text,
			RawBytes:  raw,
			Timestamp: time.Now(),
		}, nil
	case KindText:
		return &model.ChatMessage{
			Text:      strings.TrimSpace(string(raw)),
			RawBytes:  raw,
			Timestamp: time.Now(),
		}, nil
	default:
		return nil, fmt.Errorf("%w: unclassifiable frame (%d bytes)", ErrUndecodable, len(raw))
	}
}

func (d *Decoder) decodeJSON(raw []byte) (*model.ChatMessage, error) {
	var env nimEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return d.decodeScraped(raw, err)
	}
	c := env.nimContent
	if env.Content != nil {
		c = *env.Content
	}
	if c.FromID == "" && c.MsgBody == "" && c.MsgAttach == "" {
		return nil, ErrNotChatMessage
	}
	if c.MsgType != msgTypeText && c.MsgType != msgTypeCustom {
		return nil, ErrNotChatMessage
	}

	msg := &model.ChatMessage{
		ID:         c.ClientMsgID,
		SenderID:   c.FromID,
		SenderNick: d.decodeNickname(c.FromNick),
		RawBytes:   raw,
		IsFromSelf: d.selfID != "" && c.FromID == d.selfID,
	}
	if c.ToType == toTypeTeam {
		msg.GroupID = c.TalkID
		if msg.GroupID == "" {
			msg.GroupID = c.ToAccid
		}
	}
	if c.Time > 0 {
		msg.Timestamp = time.UnixMilli(c.Time)
	} else {
		msg.Timestamp = time.Now()
	}

	text := strings.TrimSpace(c.MsgBody)
	if text == "" && c.MsgAttach != "" {
		decoded, err := d.decodeAttach(c.MsgAttach)
		if err != nil {
			d.log.Debug().Err(err).Str("msg_id", msg.ID).Msg("attach decode failed")
			return nil, err
		}
		text = decoded
	}
	if text == "" {
		return nil, ErrNotChatMessage
	}
	msg.Text = text
	return msg, nil
}

// decodeScraped is the heuristic fallback for malformed JSON frames.
// Scraped sender identity is accepted for read paths only; the message is
// marked by leaving ID empty so downstream can tell it apart.
func (d *Decoder) decodeScraped(raw []byte, cause error) (*model.ChatMessage, error) {
	fields := ScrapeFields(string(raw), []string{"from_id", "from_nick", "talk_id", "msg_body", "time"})
	body, ok := fields["msg_body"]
	if !ok || strings.TrimSpace(body.Value) == "" {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, cause)
	}
	d.log.Debug().Int("fields", len(fields)).Msg("schema parse failed, using scraped fields")
	msg := &model.ChatMessage{
		SenderID:   fields["from_id"].Value,
		SenderNick: d.decodeNickname(fields["from_nick"].Value),
		GroupID:    fields["talk_id"].Value,
		Text:       strings.TrimSpace(body.Value),
		RawBytes:   raw,
		Timestamp:  time.Now(),
	}
	if ts, err := strconv.ParseInt(fields["time"].Value, 10, 64); err == nil && ts > 0 {
		msg.Timestamp = time.UnixMilli(ts)
	}
	return msg, nil
}

// decodeAttach unwraps the {"b": "<base64url>"} attachment wrapper.
func (d *Decoder) decodeAttach(attach string) (string, error) {
	var wrapper struct {
		B string `json:"b"`
	}
	if err := json.Unmarshal([]byte(attach), &wrapper); err != nil || wrapper.B == "" {
		return "", fmt.Errorf("%w: attach wrapper", ErrUndecodable)
	}
	body, err := Base64URLDecode(wrapper.B)
	if err != nil {
		return "", err
	}
	return d.decodeAttachBody(body)
}

func (d *Decoder) decodeAttachBody(body []byte) (string, error) {
	h, err := ParseAttachHeader(body)
	if err != nil {
		return "", err
	}
	payload := h.Payload
	if h.Encrypted {
		// The cipher body is raw AES-CBC blocks; some captures re-wrap
		// it in base64, so fall back to the textual form.
		if plain, err := decryptCBC(payload, d.msgProfile.key, d.msgProfile.iv); err == nil && utf8.Valid(plain) {
			return strings.TrimSpace(string(plain)), nil
		}
		plain, err := Decrypt(string(payload), d.msgProfile)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(plain), nil
	}
	return strings.TrimSpace(cleanText(payload)), nil
}

// decodeNickname tries the fixed nickname profile; obfuscated nicknames
// are base64 blobs, everything else passes through unchanged.
func (d *Decoder) decodeNickname(nick string) string {
	nick = strings.TrimSpace(nick)
	if nick == "" || !looksBase64(nick) {
		return nick
	}
	plain, err := Decrypt(nick, d.nickProfile)
	if err != nil {
		return nick
	}
	return plain
}

func looksBase64(s string) bool {
	if len(s) < 24 || len(s)%4 != 0 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '+', r == '/', r == '=':
		default:
			return false
		}
	}
	return true
}

// cleanText keeps printable ASCII, CJK and newlines, dropping the framing
// bytes that surround the readable payload.
func cleanText(data []byte) string {
	var b strings.Builder
	for _, r := range string(data) {
		switch {
		case r >= 0x20 && r <= 0x7E:
			b.WriteRune(r)
		case r >= 0x4E00 && r <= 0x9FFF:
			b.WriteRune(r)
		case r == '\n' || r == '\r':
			b.WriteRune(r)
		case r >= 0x3000 && r <= 0x303F, r >= 0xFF00 && r <= 0xFFEF:
			// CJK punctuation and fullwidth forms
			b.WriteRune(r)
		}
	}
	return b.String()
}
