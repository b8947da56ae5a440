package jwks_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/julioonmartinez/lulinks-api/internal/jwks"
	"github.com/julioonmartinez/lulinks-api/internal/jwks/jwkstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://securetoken.google.com/lulinks-test"
	testAudience = "lulinks-test"
)

func TestVerifyValidToken(t *testing.T) {
	iss := jwkstest.New(testIssuer, testAudience)
	uid, err := iss.Verifier().Verify(context.Background(), iss.Token("alice"))
	require.NoError(t, err)
	assert.Equal(t, "alice", uid)
}

func TestVerifyRejects(t *testing.T) {
	iss := jwkstest.New(testIssuer, testAudience)
	other := jwkstest.New(testIssuer, testAudience)
	v := iss.Verifier()
	now := time.Now()

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"expired", iss.Sign(jwt.MapClaims{"iss": testIssuer, "aud": testAudience, "sub": "alice", "exp": now.Add(-time.Hour).Unix()})},
		{"missing exp", iss.Sign(jwt.MapClaims{"iss": testIssuer, "aud": testAudience, "sub": "alice"})},
		{"wrong issuer", iss.Sign(jwt.MapClaims{"iss": "https://evil.example", "aud": testAudience, "sub": "alice", "exp": now.Add(time.Hour).Unix()})},
		{"wrong audience", iss.Sign(jwt.MapClaims{"iss": testIssuer, "aud": "other", "sub": "alice", "exp": now.Add(time.Hour).Unix()})},
		{"no subject", iss.Sign(jwt.MapClaims{"iss": testIssuer, "aud": testAudience, "exp": now.Add(time.Hour).Unix()})},
		{"foreign key", other.Token("alice")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.token)
			assert.Error(t, err)
		})
	}
}

func TestVerifyRS256(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	set := &jwks.JWKS{Keys: []jwks.JWK{{
		Kty: "RSA",
		Kid: "rsa-1",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(priv.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(priv.E)).Bytes()),
	}}}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss": testIssuer, "aud": testAudience, "sub": "bob", "exp": time.Now().Add(time.Hour).Unix(),
	})
	tok.Header["kid"] = "rsa-1"
	signed, err := tok.SignedString(priv)
	require.NoError(t, err)

	uid, err := jwks.NewStaticClient(set, testIssuer, testAudience).Verify(context.Background(), signed)
	require.NoError(t, err)
	assert.Equal(t, "bob", uid)
}

func TestClientFetchesAndCaches(t *testing.T) {
	iss := jwkstest.New(testIssuer, testAudience)
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_ = json.NewEncoder(w).Encode(iss.JWKS())
	}))
	defer srv.Close()

	c := jwks.NewClient(srv.URL, testIssuer, testAudience, jwks.WithTTL(time.Hour))
	for i := 0; i < 3; i++ {
		uid, err := c.Verify(context.Background(), iss.Token("alice"))
		require.NoError(t, err)
		assert.Equal(t, "alice", uid)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestClientServesStaleKeysWhenProviderFails(t *testing.T) {
	iss := jwkstest.New(testIssuer, testAudience)
	var failing atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(iss.JWKS())
	}))
	defer srv.Close()

	c := jwks.NewClient(srv.URL, testIssuer, testAudience, jwks.WithTTL(time.Millisecond))
	_, err := c.Verify(context.Background(), iss.Token("alice"))
	require.NoError(t, err)

	failing.Store(true)
	time.Sleep(5 * time.Millisecond)
	for i := 0; i < 5; i++ {
		uid, err := c.Verify(context.Background(), iss.Token("alice"))
		require.NoError(t, err)
		assert.Equal(t, "alice", uid)
	}
}

func TestClientProviderDownWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	iss := jwkstest.New(testIssuer, testAudience)
	c := jwks.NewClient(srv.URL, testIssuer, testAudience)
	_, err := c.Verify(context.Background(), iss.Token("alice"))
	assert.Error(t, err)
}
