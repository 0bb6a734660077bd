package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestGenerateAndValidate(t *testing.T) {
	m := NewJWTManager(testSecret, time.Hour)

	token, err := m.Generate("invoicer")
	require.NoError(t, err)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "invoicer", claims.Client)
	assert.Equal(t, "invoicer", claims.Subject)
	require.NotNil(t, claims.ExpiresAt)

	_, err = m.Generate("")
	assert.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	m := NewJWTManager(testSecret, time.Hour)
	good, err := m.Generate("invoicer")
	require.NoError(t, err)

	expired := NewJWTManager(testSecret, time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.Generate("invoicer")
	require.NoError(t, err)

	otherSecret, err := NewJWTManager("another-secret-another-secret-xx", time.Hour).Generate("invoicer")
	require.NoError(t, err)

	foreignIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Client:           "invoicer",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else"},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	noClient, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"expired", old},
		{"wrong secret", otherSecret},
		{"foreign issuer", foreignIssuer},
		{"no client", noClient},
		{"tampered", good + "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Validate(tt.token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidToken))
		})
	}
}

func TestNoExpiry(t *testing.T) {
	m := NewJWTManager(testSecret, 0)
	token, err := m.Generate("cron")
	require.NoError(t, err)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Nil(t, claims.ExpiresAt)
}

func TestInspectAPIKey(t *testing.T) {
	exp := time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC)
	key, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": "anon",
		"exp":  exp.Unix(),
	}).SignedString([]byte("unknown-to-us"))
	require.NoError(t, err)

	info, err := InspectAPIKey(key)
	require.NoError(t, err)
	assert.Equal(t, "anon", info.Role)
	assert.True(t, exp.Equal(info.ExpiresAt))
	assert.False(t, info.Privileged())
	assert.False(t, info.Expired(exp.Add(-time.Second)))
	assert.True(t, info.Expired(exp.Add(time.Second)))

	_, err = InspectAPIKey("sb_publishable_abc")
	assert.Error(t, err)
}
