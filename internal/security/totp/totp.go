// Package totp implements RFC 6238 time-based one-time passwords with the
// anti-replay counter discipline used by login verification: a code is only
// accepted if its time-step counter is strictly greater than the last one
// accepted for that login.
package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base32"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	// Period is the TOTP time step in seconds.
	Period = 30
	digits = 6
)

// GenerateSecret returns 20 random bytes and their unpadded base32 form.
func GenerateSecret() (raw []byte, b32 string, err error) {
	raw = make([]byte, 20)
	if _, err = rand.Read(raw); err != nil {
		return nil, "", err
	}
	return raw, base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw), nil
}

// DecodeSecret parses an unpadded base32 secret as stored on the user record.
func DecodeSecret(b32 string) ([]byte, error) {
	return base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(strings.TrimSpace(b32)))
}

// OTPAuthURL builds the otpauth:// enrollment URL for QR rendering.
func OTPAuthURL(issuer, accountName, secretB32 string) string {
	label := url.PathEscape(fmt.Sprintf("%s:%s", issuer, accountName))
	q := url.Values{}
	q.Set("secret", secretB32)
	q.Set("issuer", issuer)
	q.Set("algorithm", "SHA1")
	q.Set("digits", fmt.Sprint(digits))
	q.Set("period", fmt.Sprint(Period))
	return fmt.Sprintf("otpauth://totp/%s?%s", label, q.Encode())
}

// Generate returns the code for the time step containing t. Used for
// enrollment confirmation and tests.
func Generate(secretRaw []byte, t time.Time) string {
	return hotp(secretRaw, t.Unix()/Period)
}

// Verify checks code against the secret in a window of +/- windowSteps around
// t. Counters at or below lastCounterUsed are skipped, so a numerically valid
// code from an already-consumed step never verifies. Returns the accepted
// counter so the caller can persist it as the new replay floor.
func Verify(secretRaw []byte, code string, t time.Time, windowSteps int, lastCounterUsed *int64) (ok bool, counter int64) {
	code = strings.TrimSpace(code)
	if len(code) != digits {
		return false, 0
	}
	counter = t.Unix() / Period
	start := counter - int64(windowSteps)
	end := counter + int64(windowSteps)
	for c := start; c <= end; c++ {
		if lastCounterUsed != nil && c <= *lastCounterUsed {
			continue
		}
		if hotp(secretRaw, c) == code {
			return true, c
		}
	}
	return false, 0
}

// hotp is RFC 4226 with HMAC-SHA1 and 6 digits.
func hotp(secretRaw []byte, counter int64) string {
	var msg [8]byte
	for i := 7; i >= 0; i-- {
		msg[i] = byte(counter & 0xff)
		counter >>= 8
	}
	m := hmac.New(sha1.New, secretRaw)
	_, _ = m.Write(msg[:])
	sum := m.Sum(nil)
	offset := int(sum[len(sum)-1] & 0x0f)
	bin := (int(sum[offset])&0x7f)<<24 | int(sum[offset+1])<<16 | int(sum[offset+2])<<8 | int(sum[offset+3])
	return fmt.Sprintf("%06d", bin%1000000)
}
