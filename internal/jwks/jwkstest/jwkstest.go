// Package jwkstest issues signed ID tokens and serves the matching key set for tests.
package jwkstest

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/julioonmartinez/lulinks-api/internal/jwks"
)

// Issuer signs tokens with a generated Ed25519 key.
type Issuer struct {
	Kid      string
	Issuer   string
	Audience string
	key      ed25519.PrivateKey
	pub      ed25519.PublicKey
}

// New generates a fresh signing key.
func New(issuer, audience string) *Issuer {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic(err)
	}
	return &Issuer{Kid: "test-key", Issuer: issuer, Audience: audience, key: priv, pub: pub}
}

// JWKS returns the public key set for the issuer's key.
func (i *Issuer) JWKS() *jwks.JWKS {
	return &jwks.JWKS{Keys: []jwks.JWK{{
		Kty: "OKP",
		Kid: i.Kid,
		Use: "sig",
		Alg: "EdDSA",
		Crv: "Ed25519",
		X:   base64.RawURLEncoding.EncodeToString(i.pub),
	}}}
}

// Verifier returns a client that trusts this issuer's key set.
func (i *Issuer) Verifier() *jwks.Client {
	return jwks.NewStaticClient(i.JWKS(), i.Issuer, i.Audience)
}

// Server serves the key set over HTTP. Callers close it.
func (i *Issuer) Server() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(i.JWKS())
	}))
}

// Token returns a valid token for uid expiring in one hour.
func (i *Issuer) Token(uid string) string {
	now := time.Now()
	return i.Sign(jwt.MapClaims{
		"iss": i.Issuer,
		"aud": i.Audience,
		"sub": uid,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	})
}

// Sign signs arbitrary claims with the issuer's key.
func (i *Issuer) Sign(claims jwt.MapClaims) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = i.Kid
	s, err := tok.SignedString(i.key)
	if err != nil {
		panic(err)
	}
	return s
}
