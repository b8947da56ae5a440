// Package jwks verifies identity provider ID tokens against a published key set.
package jwks

import (
	"context"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/julioonmartinez/lulinks-api/internal/metrics"
	gobreaker "github.com/sony/gobreaker/v2"
)

// ErrKeyNotFound is returned when a token names a kid the key set does not contain.
var ErrKeyNotFound = errors.New("signing key not found")

// JWKS represents a JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key. RSA keys use N and E, OKP keys use Crv and X.
type JWK struct {
	Kty string `json:"kty"`           // Key type (RSA, OKP)
	Kid string `json:"kid"`           // Key ID
	Use string `json:"use,omitempty"` // Public key use
	Alg string `json:"alg,omitempty"` // Algorithm
	Crv string `json:"crv,omitempty"` // Curve
	X   string `json:"x,omitempty"`   // OKP public key
	N   string `json:"n,omitempty"`   // RSA modulus
	E   string `json:"e,omitempty"`   // RSA exponent
}

// PublicKey decodes the key material into a crypto public key.
func (k JWK) PublicKey() (interface{}, error) {
	switch k.Kty {
	case "RSA":
		nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			return nil, fmt.Errorf("failed to decode modulus: %w", err)
		}
		eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			return nil, fmt.Errorf("failed to decode exponent: %w", err)
		}
		e := new(big.Int).SetBytes(eBytes)
		if !e.IsInt64() || e.Int64() <= 0 {
			return nil, fmt.Errorf("invalid RSA exponent")
		}
		return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: int(e.Int64())}, nil
	case "OKP":
		if k.Crv != "Ed25519" {
			return nil, fmt.Errorf("unsupported curve %q", k.Crv)
		}
		xBytes, err := base64.RawURLEncoding.DecodeString(k.X)
		if err != nil {
			return nil, fmt.Errorf("failed to decode public key: %w", err)
		}
		if len(xBytes) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("invalid Ed25519 key length")
		}
		return ed25519.PublicKey(xBytes), nil
	}
	return nil, fmt.Errorf("unsupported key type %q", k.Kty)
}

// Client handles JWKS discovery, caching and token verification
type Client struct {
	jwksURL    string
	issuer     string
	audience   string
	ttl        time.Duration
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*JWKS]
	metrics    *metrics.Metrics
	cache      jwksCache
	static     bool // Key set supplied up front; never fetched
}

// jwksCache stores cached JWKS with expiration
type jwksCache struct {
	mutex     sync.RWMutex
	jwks      *JWKS
	expiresAt time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithTTL sets how long a fetched key set is served before refetching.
func WithTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithHTTPClient replaces the HTTP client used for fetches.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a client that fetches keys from jwksURL and accepts tokens
// issued by issuer for audience.
func NewClient(jwksURL, issuer, audience string, opts ...Option) *Client {
	c := &Client{
		jwksURL:    jwksURL,
		issuer:     issuer,
		audience:   audience,
		ttl:        5 * time.Minute,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		metrics:    metrics.NewMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}

	// Repeated fetch failures open the breaker; the last good key set keeps serving meanwhile
	c.breaker = gobreaker.NewCircuitBreaker[*JWKS](gobreaker.Settings{
		Name:        "jwks",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("JWKS circuit breaker state change", "from", from.String(), "to", to.String())
		},
	})
	return c
}

// NewStaticClient verifies against a fixed key set. Used by tests and local development.
func NewStaticClient(set *JWKS, issuer, audience string) *Client {
	c := NewClient("", issuer, audience)
	c.static = true
	c.cache.jwks = set
	return c
}

// fetchJWKS fetches the JWKS from the identity provider
func (c *Client) fetchJWKS(ctx context.Context) (*JWKS, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS fetch failed with status %d", resp.StatusCode)
	}

	var set JWKS
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}
	if len(set.Keys) == 0 {
		return nil, fmt.Errorf("JWKS contains no keys")
	}
	return &set, nil
}

// getJWKS returns the cached key set, refreshing it when expired or when force is set.
// When a refresh fails and a previous key set exists, the stale set is returned.
func (c *Client) getJWKS(ctx context.Context, force bool) (*JWKS, error) {
	if c.static {
		return c.cache.jwks, nil
	}

	c.cache.mutex.RLock()
	if !force && c.cache.jwks != nil && time.Now().Before(c.cache.expiresAt) {
		set := c.cache.jwks
		c.cache.mutex.RUnlock()
		return set, nil
	}
	c.cache.mutex.RUnlock()

	c.cache.mutex.Lock()
	defer c.cache.mutex.Unlock()

	// Double-check after acquiring write lock
	if !force && c.cache.jwks != nil && time.Now().Before(c.cache.expiresAt) {
		return c.cache.jwks, nil
	}

	set, err := c.breaker.Execute(func() (*JWKS, error) {
		return c.fetchJWKS(ctx)
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "breaker_open"
		}
		c.metrics.JWKSFetchTotal.WithLabelValues(outcome).Inc()
		if c.cache.jwks != nil {
			c.metrics.JWKSFetchTotal.WithLabelValues("stale").Inc()
			slog.Warn("serving stale JWKS", "error", err)
			return c.cache.jwks, nil
		}
		return nil, err
	}

	c.metrics.JWKSFetchTotal.WithLabelValues("ok").Inc()
	c.cache.jwks = set
	c.cache.expiresAt = time.Now().Add(c.ttl)
	return set, nil
}

// getKey retrieves a specific key by kid, refetching once if the kid is unknown
// so that rotated keys are picked up before the cache expires.
func (c *Client) getKey(ctx context.Context, kid string) (*JWK, error) {
	for attempt := 0; attempt < 2; attempt++ {
		set, err := c.getJWKS(ctx, attempt > 0)
		if err != nil {
			return nil, err
		}
		for _, key := range set.Keys {
			if key.Kid == kid {
				k := key
				return &k, nil
			}
		}
		if c.static {
			break
		}
	}
	return nil, fmt.Errorf("%w: kid %s", ErrKeyNotFound, kid)
}

// Verify checks signature, issuer, audience and expiry of an ID token and
// returns the subject (the provider's user id).
func (c *Client) Verify(ctx context.Context, tokenString string) (string, error) {
	keyFunc := func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("missing or invalid kid in JWT header")
		}
		jwk, err := c.getKey(ctx, kid)
		if err != nil {
			return nil, err
		}
		key, err := jwk.PublicKey()
		if err != nil {
			return nil, err
		}
		// The key type must agree with the token's algorithm
		switch token.Method.(type) {
		case *jwt.SigningMethodRSA:
			if _, ok := key.(*rsa.PublicKey); !ok {
				return nil, fmt.Errorf("key %s is not an RSA key", kid)
			}
		case *jwt.SigningMethodEd25519:
			if _, ok := key.(ed25519.PublicKey); !ok {
				return nil, fmt.Errorf("key %s is not an Ed25519 key", kid)
			}
		}
		return key, nil
	}

	claims := jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, &claims, keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg(), jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil {
		return "", fmt.Errorf("failed to verify JWT: %w", err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return claims.Subject, nil
}
