package stream

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

// Progress is the caller-held session state. The server keeps no per-request
// memory: everything pacing needs to resume is signed into the token.
type Progress struct {
	PlayID     int64 `json:"pid"`
	ContentID  int64 `json:"cid"`
	CompanyID  int64 `json:"co"`
	StartedAt  int64 `json:"st"`            // unix ms of first byte request
	HalfAt     int64 `json:"t50,omitempty"` // unix ms when delivery crossed 50%
	HalfOffset int64 `json:"b50,omitempty"` // byte offset at the crossing
	MaxSent    int64 `json:"max"`           // highest delivered offset + 1
}

func (p Progress) startedAt() time.Time { return time.UnixMilli(p.StartedAt) }
func (p Progress) halfAt() time.Time    { return time.UnixMilli(p.HalfAt) }

// Codec signs and verifies progress tokens: base64url(JSON payload) + "." +
// base64url(HMAC-SHA256(payload)). No expiry; staleness is the session
// manager's business.
type Codec struct {
	secret []byte
}

func NewCodec(secret string) *Codec { return &Codec{secret: []byte(secret)} }

func (c *Codec) sign(payload string) string {
	h := hmac.New(sha256.New, c.secret)
	_, _ = h.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func (c *Codec) Issue(p Progress) string {
	b, _ := json.Marshal(p)
	payload := base64.RawURLEncoding.EncodeToString(b)
	return payload + "." + c.sign(payload)
}

// Verify decodes and authenticates a token. Any structural or signature
// failure means "no prior session", never an error: clients mangle tokens and
// the correct response is a fresh session, not a 4xx.
func (c *Codec) Verify(token string) (Progress, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 || parts[0] == "" {
		return Progress{}, false
	}
	expected := c.sign(parts[0])
	if !hmac.Equal([]byte(expected), []byte(parts[1])) {
		return Progress{}, false
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return Progress{}, false
	}
	var p Progress
	if err := json.Unmarshal(raw, &p); err != nil {
		return Progress{}, false
	}
	if p.PlayID <= 0 || p.ContentID <= 0 || p.CompanyID <= 0 {
		return Progress{}, false
	}
	return p, true
}
