package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueParse(t *testing.T) {
	tokens := NewTokens("s3cret", time.Hour)
	tok, err := tokens.Issue("U1")
	require.NoError(t, err)

	sub, err := tokens.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "U1", sub)

	_, err = NewTokens("other", time.Hour).Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = tokens.Parse("")
	assert.ErrorIs(t, err, ErrMissingToken)
	_, err = tokens.Parse("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsExpiredAndSubjectless(t *testing.T) {
	tokens := NewTokens("s3cret", time.Hour)
	sign := func(c jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte("s3cret"))
		require.NoError(t, err)
		return s
	}

	_, err := tokens.Parse(sign(jwt.MapClaims{"sub": "U1", "exp": time.Now().Add(-time.Minute).Unix()}))
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = tokens.Parse(sign(jwt.MapClaims{"sub": "U1"}))
	assert.ErrorIs(t, err, ErrInvalidToken, "exp is required")
	_, err = tokens.Parse(sign(jwt.MapClaims{"exp": time.Now().Add(time.Minute).Unix()}))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestFromRequest(t *testing.T) {
	tokens := NewTokens("s3cret", time.Hour)
	tok, _ := tokens.Issue("U2")

	r := httptest.NewRequest("GET", "/conversations", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	sub, err := tokens.FromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "U2", sub)

	r = httptest.NewRequest("GET", "/ws?access_token="+tok, nil)
	sub, err = tokens.FromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "U2", sub)

	_, err = tokens.FromRequest(httptest.NewRequest("GET", "/ws", nil))
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestLimiterPerParticipant(t *testing.T) {
	l := NewLimiter(0.0001, 2)
	assert.True(t, l.Allow("U1"))
	assert.True(t, l.Allow("U1"))
	assert.False(t, l.Allow("U1"))
	assert.True(t, l.Allow("U2"), "buckets are independent")
}

func TestLimiterEvictsIdleBuckets(t *testing.T) {
	l := NewLimiter(0.0001, 1)
	defer l.Close()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("U1"))
	assert.False(t, l.Allow("U1"))
	now = now.Add(5 * time.Minute)
	assert.True(t, l.Allow("U2"))
	assert.Equal(t, 2, l.Len())

	now = now.Add(6 * time.Minute)
	assert.Equal(t, 1, l.sweep(), "only U1 has been idle past the TTL")
	assert.Equal(t, 1, l.Len())
	assert.True(t, l.Allow("U1"), "an evicted participant starts with a fresh bucket")
}
