package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func messageProfile() KeyProfile {
	return NewPassphraseProfile("message", "49KdgB8_9=12+3hF")
}

func nicknameProfile(t *testing.T) KeyProfile {
	t.Helper()
	p, err := NewFixedProfile("nickname", "d6ba6647b7c43b79d0e42ceb2790e342", "kgWRyiiODMjSCh0m")
	require.NoError(t, err)
	return p
}

// Decrypting what we encrypted must return the original for any input,
// under both key profiles.
func TestEncryptDecryptRoundTripProperty(t *testing.T) {
	msgProf := messageProfile()
	nickProf := nicknameProfile(t)

	rapid.Check(t, func(t *rapid.T) {
		plain := rapid.String().Draw(t, "plain")
		for _, prof := range []KeyProfile{msgProf, nickProf} {
			enc, err := Encrypt(plain, prof)
			if err != nil {
				t.Fatalf("encrypt under %s: %v", prof.Name, err)
			}
			dec, err := Decrypt(enc, prof)
			if err != nil {
				t.Fatalf("decrypt under %s: %v", prof.Name, err)
			}
			if dec != plain {
				t.Fatalf("round trip under %s: got %q, want %q", prof.Name, dec, plain)
			}
		}
	})
}

func TestDecryptFailsClosed(t *testing.T) {
	prof := messageProfile()

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not base64", "!!!not-base64!!!"},
		{"base64 but not block aligned", "YWJj"},
		{"valid blocks, garbage padding", "AAAAAAAAAAAAAAAAAAAAAA=="},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decrypt(tt.input, prof)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUndecodable)
		})
	}
}

func TestDecryptWrongProfileFails(t *testing.T) {
	enc, err := Encrypt("大100", messageProfile())
	require.NoError(t, err)

	// Wrong key material must never yield the plaintext.
	dec, err := Decrypt(enc, nicknameProfile(t))
	if err == nil {
		assert.NotEqual(t, "大100", dec)
	}
}

func TestNewFixedProfileValidation(t *testing.T) {
	_, err := NewFixedProfile("short", "tooshort", "kgWRyiiODMjSCh0m")
	assert.ErrorIs(t, err, ErrBadKeySize)

	_, err = NewFixedProfile("badiv", "d6ba6647b7c43b79d0e42ceb2790e342", "short")
	assert.ErrorIs(t, err, ErrBadKeySize)
}

func TestBase64URLRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOf(rapid.Byte()).Draw(t, "data")
		enc := Base64URLEncode(data)
		dec, err := Base64URLDecode(enc)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(data) == 0 && len(dec) == 0 {
			return
		}
		if string(dec) != string(data) {
			t.Fatalf("round trip: got %x, want %x", dec, data)
		}
	})
}
