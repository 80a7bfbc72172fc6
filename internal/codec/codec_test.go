package codec

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lottery-group-bot/internal/config"
)

func testDecoder(t *testing.T) *Decoder {
	t.Helper()
	d, err := NewDecoder(config.CryptoConfig{
		MessagePassphrase: "49KdgB8_9=12+3hF",
		NicknameKey:       "d6ba6647b7c43b79d0e42ceb2790e342",
		NicknameIV:        "kgWRyiiODMjSCh0m",
	}, "90001", zerolog.Nop())
	require.NoError(t, err)
	return d
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want PayloadKind
	}{
		{"json object", []byte(`{"msg_body":"hi"}`), KindJSON},
		{"json array", []byte(`[1,2]`), KindJSON},
		{"json with leading space", []byte("  {\"a\":1}"), KindJSON},
		{"binary attach", BuildAttachBody([]byte("大100"), 7, false), KindBinary},
		{"plain text", []byte("大100"), KindText},
		{"empty", nil, KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.raw))
		})
	}
}

func TestDecodeGroupTextMessage(t *testing.T) {
	d := testDecoder(t)

	frame := map[string]any{
		"rescode": 200,
		"content": map[string]any{
			"client_msg_id": "abc-123",
			"time":          time.Date(2026, 1, 11, 12, 0, 0, 0, time.Local).UnixMilli(),
			"from_id":       "70001",
			"from_nick":     "老王",
			"to_type":       1,
			"talk_id":       "g-888",
			"msg_type":      0,
			"msg_body":      "大100 单50",
		},
	}
	raw, err := json.Marshal(frame)
	require.NoError(t, err)

	msg, err := d.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", msg.ID)
	assert.Equal(t, "70001", msg.SenderID)
	assert.Equal(t, "老王", msg.SenderNick)
	assert.Equal(t, "g-888", msg.GroupID)
	assert.True(t, msg.IsGroupMessage())
	assert.Equal(t, "大100 单50", msg.Text)
	assert.False(t, msg.IsFromSelf)
}

func TestDecodeSelfMessageFlagged(t *testing.T) {
	d := testDecoder(t)

	raw := []byte(`{"content":{"from_id":"90001","to_type":1,"talk_id":"g-1","msg_type":0,"msg_body":"封盘"}}`)
	msg, err := d.Decode(raw)
	require.NoError(t, err)
	assert.True(t, msg.IsFromSelf)
}

func TestDecodePrivateMessageHasNoGroup(t *testing.T) {
	d := testDecoder(t)

	raw := []byte(`{"content":{"from_id":"70001","to_type":0,"to_accid":"90001","msg_type":0,"msg_body":"1"}}`)
	msg, err := d.Decode(raw)
	require.NoError(t, err)
	assert.False(t, msg.IsGroupMessage())
	assert.Equal(t, "1", msg.Text)
}

func TestDecodeEncryptedNickname(t *testing.T) {
	d := testDecoder(t)

	nickCipher, err := Encrypt("财神爷", nicknameProfile(t))
	require.NoError(t, err)
	require.True(t, looksBase64(nickCipher), "cipher %q should look like base64", nickCipher)

	frame := map[string]any{
		"content": map[string]any{
			"from_id":   "70002",
			"from_nick": nickCipher,
			"to_type":   1,
			"talk_id":   "g-888",
			"msg_type":  0,
			"msg_body":  "小50",
		},
	}
	raw, err := json.Marshal(frame)
	require.NoError(t, err)

	msg, err := d.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "财神爷", msg.SenderNick)
}

func TestDecodeEncryptedAttach(t *testing.T) {
	d := testDecoder(t)

	cipherText, err := Encrypt("猜7", d.MessageProfile())
	require.NoError(t, err)
	body := BuildAttachBody([]byte(cipherText), 42, true)
	attach, err := json.Marshal(map[string]string{"b": Base64URLEncode(body)})
	require.NoError(t, err)

	frame := map[string]any{
		"content": map[string]any{
			"from_id":    "70003",
			"to_type":    1,
			"talk_id":    "g-888",
			"msg_type":   100,
			"msg_attach": string(attach),
		},
	}
	raw, err := json.Marshal(frame)
	require.NoError(t, err)

	msg, err := d.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "猜7", msg.Text)
}

func TestDecodePlainAttach(t *testing.T) {
	d := testDecoder(t)

	body := BuildAttachBody([]byte("\x01\x02上分200\x00"), 0, false)
	attach, err := json.Marshal(map[string]string{"b": Base64URLEncode(body)})
	require.NoError(t, err)

	frame := map[string]any{
		"content": map[string]any{
			"from_id":    "70004",
			"to_type":    1,
			"talk_id":    "g-888",
			"msg_type":   100,
			"msg_attach": string(attach),
		},
	}
	raw, err := json.Marshal(frame)
	require.NoError(t, err)

	msg, err := d.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "上分200", msg.Text)
}

func TestDecodeSkipsNonChatFrames(t *testing.T) {
	d := testDecoder(t)

	tests := []struct {
		name string
		raw  string
	}{
		{"notification", `{"content":{"from_id":"70001","to_type":1,"talk_id":"g-1","msg_type":5,"msg_body":"muted"}}`},
		{"empty content", `{"rescode":200,"content":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Decode([]byte(tt.raw))
			assert.ErrorIs(t, err, ErrNotChatMessage)
		})
	}
}

func TestDecodeCorruptFrameFailsClosed(t *testing.T) {
	d := testDecoder(t)

	_, err := d.Decode([]byte{0xFF, 0xFE, 0x00, 0x01})
	assert.ErrorIs(t, err, ErrUndecodable)
}

func TestDecodeScrapedFallback(t *testing.T) {
	d := testDecoder(t)

	// Trailing comma makes this invalid JSON; the scraper should still
	// recover the fields it knows about.
	raw := []byte(`{"from_id":"70005","from_nick":"阿强","talk_id":"g-9","msg_body":"查",}`)
	msg, err := d.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "70005", msg.SenderID)
	assert.Equal(t, "查", msg.Text)
	assert.Empty(t, msg.ID, "scraped messages carry no trusted id")
}

func TestScrapeFieldsProvenance(t *testing.T) {
	fields := ScrapeFields(`garbage "from_id":"123" noise "amount":500 tail`, nil)
	require.Contains(t, fields, "from_id")
	assert.Equal(t, Field{Value: "123", Origin: OriginHeuristic}, fields["from_id"])
	assert.Equal(t, "500", fields["amount"].Value)
}

func TestAttachHeaderRoundTrip(t *testing.T) {
	payload := []byte("hello 大小单双")
	body := BuildAttachBody(payload, 1234, true)

	h, err := ParseAttachHeader(body)
	require.NoError(t, err)
	assert.Equal(t, uint32(1234), h.Meta)
	assert.True(t, h.Encrypted)
	assert.Equal(t, payload, h.Payload)
}

func TestAttachHeaderRejectsGarbage(t *testing.T) {
	_, err := ParseAttachHeader([]byte("short"))
	assert.ErrorIs(t, err, ErrUndecodable)

	bad := BuildAttachBody([]byte("x"), 0, false)
	bad[0] = 0xAA
	_, err = ParseAttachHeader(bad)
	assert.ErrorIs(t, err, ErrUndecodable)
}

func TestMentions(t *testing.T) {
	text := "[LQ:@70001] 上分成功 [LQ:@70002]"
	assert.Equal(t, []string{"70001", "70002"}, ExtractMentions(text))
	assert.Equal(t, "上分成功", StripMentions(text))
	assert.Equal(t, "[LQ:@70001]", FormatMention("70001"))
	assert.Nil(t, ExtractMentions("no mentions here"))
}
