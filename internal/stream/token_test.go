package stream

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	codec := NewCodec("test-secret")
	in := Progress{
		PlayID:     42,
		ContentID:  7,
		CompanyID:  3,
		StartedAt:  1_700_000_000_000,
		HalfAt:     1_700_000_090_000,
		HalfOffset: 5_000_000,
		MaxSent:    6_000_000,
	}

	tok := codec.Issue(in)
	out, ok := codec.Verify(tok)
	require.True(t, ok)
	assert.Equal(t, in, out)
}

func TestTokenTamperRejected(t *testing.T) {
	codec := NewCodec("test-secret")
	tok := codec.Issue(Progress{PlayID: 1, ContentID: 2, CompanyID: 3, StartedAt: 1, MaxSent: 100})

	parts := strings.SplitN(tok, ".", 2)
	require.Len(t, parts, 2)

	// payload swapped for a forged one, signature kept
	forged := codec.Issue(Progress{PlayID: 1, ContentID: 2, CompanyID: 3, StartedAt: 1, MaxSent: 9_999_999})
	forgedPayload := strings.SplitN(forged, ".", 2)[0]
	_, ok := codec.Verify(forgedPayload + "." + parts[1])
	assert.False(t, ok)

	// signed with a different secret
	other := NewCodec("other-secret").Issue(Progress{PlayID: 1, ContentID: 2, CompanyID: 3, StartedAt: 1})
	_, ok = codec.Verify(other)
	assert.False(t, ok)
}

func TestTokenMalformedIsSoftMiss(t *testing.T) {
	codec := NewCodec("test-secret")

	for _, tok := range []string{
		"",
		"not-a-token",
		"a.b.c",
		".sig",
		"!!!.???",
	} {
		_, ok := codec.Verify(tok)
		assert.False(t, ok, "token %q", tok)
	}
}

func TestTokenRejectsZeroIdentifiers(t *testing.T) {
	codec := NewCodec("test-secret")
	tok := codec.Issue(Progress{PlayID: 0, ContentID: 2, CompanyID: 3})
	_, ok := codec.Verify(tok)
	assert.False(t, ok)
}
