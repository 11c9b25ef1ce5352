package api

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiveobs/hive/pkg/config"
)

func testAuthServer() *Server {
	return &Server{cfg: &config.Config{JWTSecret: "test-secret"}}
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerifyTokenValid(t *testing.T) {
	s := testAuthServer()
	token := signToken(t, "test-secret", jwt.MapClaims{
		"team_id": "team-1",
		"user_id": "user-1",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	teamID, userID, err := s.verifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "team-1", teamID)
	assert.Equal(t, "user-1", userID)
}

func TestVerifyTokenWrongSecret(t *testing.T) {
	s := testAuthServer()
	token := signToken(t, "other-secret", jwt.MapClaims{"team_id": "team-1"})

	_, _, err := s.verifyToken(token)
	require.Error(t, err)
}

func TestVerifyTokenExpired(t *testing.T) {
	s := testAuthServer()
	token := signToken(t, "test-secret", jwt.MapClaims{
		"team_id": "team-1",
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})

	_, _, err := s.verifyToken(token)
	require.Error(t, err)
}

func TestVerifyTokenRejectsUnsignedAlg(t *testing.T) {
	s := testAuthServer()
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"team_id": "team-1"})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, _, err = s.verifyToken(signed)
	require.Error(t, err, "alg=none must never verify")
}

func TestVerifyTokenMissingTeam(t *testing.T) {
	s := testAuthServer()
	token := signToken(t, "test-secret", jwt.MapClaims{"user_id": "user-1"})

	teamID, _, err := s.verifyToken(token)
	require.NoError(t, err)
	assert.Empty(t, teamID, "middleware turns this into a 400")
}

func TestSHA256Pattern(t *testing.T) {
	assert.True(t, sha256Pattern.MatchString("a3f8c2d1a3f8c2d1a3f8c2d1a3f8c2d1a3f8c2d1a3f8c2d1a3f8c2d1a3f8c2d1"))
	assert.False(t, sha256Pattern.MatchString("short"))
	assert.False(t, sha256Pattern.MatchString("zz" + "a3f8c2d1a3f8c2d1a3f8c2d1a3f8c2d1a3f8c2d1a3f8c2d1a3f8c2d1a3f8c2"))
}
