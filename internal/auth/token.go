package auth

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer = "desk"
	// DefaultTTL is the lifetime of minted bearer tokens.
	DefaultTTL = 10 * time.Minute
	// refreshSkew renews a cached token this long before it expires.
	refreshSkew = 30 * time.Second
)

// TokenSource yields bearer tokens for the channel and upload transports.
type TokenSource interface {
	Token() (string, error)
}

// Static returns a TokenSource that always yields token.
func Static(token string) TokenSource { return staticSource(token) }

type staticSource string

func (s staticSource) Token() (string, error) {
	if s == "" {
		return "", fmt.Errorf("no token configured")
	}
	return string(s), nil
}

// Claims is the bearer token payload.
type Claims struct {
	ClientID string `json:"client"`
	jwt.RegisteredClaims
}

// Signer mints and verifies short-lived tokens with an Ed25519 key derived
// from a shared secret.
type Signer struct {
	clientID   string
	ttl        time.Duration
	now        func() time.Time
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	mu      sync.Mutex
	cached  string
	expires time.Time
}

// NewSigner derives the signing key from secret.
func NewSigner(secret, clientID string, ttl time.Duration) (*Signer, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is empty")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	seed := sha256.Sum256([]byte(secret))
	privateKey := ed25519.NewKeyFromSeed(seed[:])
	return &Signer{
		clientID:   clientID,
		ttl:        ttl,
		now:        time.Now,
		privateKey: privateKey,
		publicKey:  privateKey.Public().(ed25519.PublicKey),
	}, nil
}

// Token returns a cached token, minting a new one when it is about to expire.
func (s *Signer) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.cached != "" && now.Add(refreshSkew).Before(s.expires) {
		return s.cached, nil
	}
	expires := now.Add(s.ttl)
	claims := Claims{
		ClientID: s.clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   s.clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	s.cached = signed
	s.expires = expires
	return signed, nil
}

// Verify parses a token minted by a Signer with the same secret.
func (s *Signer) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.publicKey, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// FromConfig picks a static token when one is configured, else a Signer.
// It returns nil when neither is available.
func FromConfig(token, secret, clientID string) (TokenSource, error) {
	if token != "" {
		return Static(token), nil
	}
	if secret == "" {
		return nil, nil
	}
	return NewSigner(secret, clientID, DefaultTTL)
}
