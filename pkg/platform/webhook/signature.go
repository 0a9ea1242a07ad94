package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/better-auth-go/platform/pkg/platform/event"
)

// SignatureHeader is the stable header name carrying the HMAC
// signature of a delivered payload.
const SignatureHeader = "X-Webhook-Signature"

// DefaultTolerance is the default acceptable clock skew between a
// signature's timestamp and the verifier's clock.
const DefaultTolerance = 300 * time.Second

// Errors returned by Verify.
var (
	ErrInvalidSignature = errors.New("webhook: invalid signature")
	ErrExpiredSignature = errors.New("webhook: signature outside tolerance window")
)

// Payload is the canonical, wire-stable JSON body signed and sent to
// an endpoint. Field order here does not matter: MarshalCanonical
// emits its keys, and those of every nested object, in lexicographic
// order.
type Payload struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	Data          any    `json:"data"`
	Timestamp     string `json:"timestamp"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// BuildPayload projects evt into the wire payload shape.
func BuildPayload(evt event.Event) Payload {
	return Payload{
		ID:            evt.ID(),
		Type:          evt.Type(),
		Data:          evt.Data(),
		Timestamp:     evt.Timestamp().Format(time.RFC3339Nano),
		CorrelationID: evt.CorrelationID(),
	}
}

// MarshalCanonical serializes p to the exact bytes that get signed
// and sent.
func MarshalCanonical(p Payload) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	// Re-encode through a generic value so json.Marshal's map-key
	// sorting applies to the struct's own fields and to struct-typed data.
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// Sign computes the X-Webhook-Signature header value for body, signed
// at ts with secret. The signed string is exactly
// "t=<unix_seconds>.<raw body bytes>".
func Sign(secret string, body []byte, ts time.Time) string {
	return "v1," + signEntry(secret, body, ts)
}

func signEntry(secret string, body []byte, ts time.Time) string {
	t := ts.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("t=%d.", t)))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%d,s=%s", t, sig)
}

// signatureEntry is one vN-tagged signature within a header value.
type signatureEntry struct {
	version   string
	timestamp int64
	sig       string
}

// parseSignatureHeader splits a header value into its vN-tagged
// entries. A "vN" token (bare, no "=") starts a new entry; subsequent
// "t=" and "s=" tokens up to the next version token belong to it.
func parseSignatureHeader(header string) []signatureEntry {
	var entries []signatureEntry
	var cur *signatureEntry

	for _, tok := range strings.Split(header, ",") {
		tok = strings.TrimSpace(tok)
		if isVersionToken(tok) {
			if cur != nil {
				entries = append(entries, *cur)
			}
			cur = &signatureEntry{version: tok}
			continue
		}
		if cur == nil {
			continue
		}
		switch {
		case strings.HasPrefix(tok, "t="):
			if ts, err := strconv.ParseInt(tok[2:], 10, 64); err == nil {
				cur.timestamp = ts
			}
		case strings.HasPrefix(tok, "s="):
			cur.sig = tok[2:]
		}
	}
	if cur != nil {
		entries = append(entries, *cur)
	}
	return entries
}

func isVersionToken(tok string) bool {
	if len(tok) < 2 || tok[0] != 'v' {
		return false
	}
	for _, r := range tok[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Verify checks header against body, accepting any v1 entry whose
// HMAC matches and whose timestamp is within tolerance of now.
// Receivers recognizing multiple versions would add cases below; this
// implementation recognizes v1 only and ignores entries tagged with a
// version it does not understand.
func Verify(secret, header string, body []byte, tolerance time.Duration, now time.Time) error {
	entries := parseSignatureHeader(header)
	if len(entries) == 0 {
		return ErrInvalidSignature
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	sawExpired := false
	for _, e := range entries {
		if e.version != "v1" {
			continue
		}
		expected := signEntry(secret, body, time.Unix(e.timestamp, 0))
		want := fmt.Sprintf("t=%d,s=%s", e.timestamp, e.sig)
		if !hmac.Equal([]byte(expected), []byte(want)) {
			continue
		}
		age := now.Sub(time.Unix(e.timestamp, 0))
		if age < 0 {
			age = -age
		}
		if age > tolerance {
			sawExpired = true
			continue
		}
		return nil
	}
	if sawExpired {
		return ErrExpiredSignature
	}
	return ErrInvalidSignature
}
