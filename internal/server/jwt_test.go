package server

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonathan/job-matcher/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-jwt-signing-minimum-32-bytes"

func setupTestJWTService(_ *testing.T, issuer string) *JWTService {
	return NewJWTService(config.AuthConfig{Secret: testSecret, ExpirationHours: 24, Issuer: issuer})
}

func TestJWTService_RoundTrip(t *testing.T) {
	service := setupTestJWTService(t, "job-matcher")
	userID := uuid.New()

	token, err := service.GenerateToken(userID)
	require.NoError(t, err)
	assert.Len(t, strings.Split(token, "."), 3)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.Equal(t, "job-matcher", claims.Issuer)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestJWTService_ValidateToken_Rejects(t *testing.T) {
	service := setupTestJWTService(t, "job-matcher")
	userID := uuid.New()

	otherKey := NewJWTService(config.AuthConfig{Secret: "a-different-secret-of-sufficient-length", ExpirationHours: 1, Issuer: "job-matcher"})
	forged, err := otherKey.GenerateToken(userID)
	require.NoError(t, err)

	otherIssuer := setupTestJWTService(t, "someone-else")
	wrongIssuer, err := otherIssuer.GenerateToken(userID)
	require.NoError(t, err)

	expiredService := setupTestJWTService(t, "job-matcher")
	expiredService.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	expired, err := expiredService.GenerateToken(userID)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: userID}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantMsg string
	}{
		{name: "empty", token: "", wantMsg: "empty"},
		{name: "garbage", token: "not.a.jwt", wantMsg: "malformed"},
		{name: "wrong key", token: forged, wantMsg: "signature"},
		{name: "wrong issuer", token: wrongIssuer, wantMsg: "failed to parse"},
		{name: "expired", token: expired, wantMsg: "expired"},
		{name: "alg none", token: none, wantMsg: "signature"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.ValidateToken(tt.token)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestJWTService_NoIssuerAcceptsAny(t *testing.T) {
	service := setupTestJWTService(t, "")
	token, err := setupTestJWTService(t, "anyone").GenerateToken(uuid.New())
	require.NoError(t, err)

	_, err = service.ValidateToken(token)
	assert.NoError(t, err)
}

func TestJWTService_AsTokenValidator(t *testing.T) {
	service := setupTestJWTService(t, "")
	userID := uuid.New()
	token, err := service.GenerateToken(userID)
	require.NoError(t, err)

	claims, err := service.AsTokenValidator().ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.GetUserID())
}
