package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/backend-kreatif/internal/common"
)

const rolesClaim = "roles"

// Config configures token verification. Tokens are issued by the catalog
// backend and signed with a shared HS256 secret.
type Config struct {
	Secret    string
	Issuer    string
	Audience  string
	ClockSkew time.Duration
}

// Claims is the caller identity carried by an access token.
type Claims struct {
	UserID string
	Roles  []string
}

// Verifier parses and validates bearer access tokens.
type Verifier struct {
	secret []byte
	policy tokenPolicy
	now    func() time.Time
}

// tokenPolicy holds the registered claims every access token must satisfy.
type tokenPolicy struct {
	issuer    string
	audience  string
	clockSkew time.Duration
	algorithm jwa.SignatureAlgorithm
}

func (p tokenPolicy) check(tok jwt.Token, algorithm jwa.SignatureAlgorithm, now time.Time) error {
	if algorithm != p.algorithm {
		return fmt.Errorf("unexpected token algorithm %s", algorithm)
	}
	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
		jwt.WithAcceptableSkew(p.clockSkew),
	}
	if p.issuer != "" {
		options = append(options, jwt.WithIssuer(p.issuer))
	}
	if p.audience != "" {
		options = append(options, jwt.WithAudience(p.audience))
	}
	if err := jwt.Validate(tok, options...); err != nil {
		return err
	}
	if strings.TrimSpace(tok.Subject()) == "" {
		return errors.New("token missing subject")
	}
	return nil
}

// NewVerifier constructs a Verifier.
func NewVerifier(cfg Config) (*Verifier, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("auth: secret is required")
	}
	skew := cfg.ClockSkew
	if skew <= 0 {
		skew = 30 * time.Second
	}
	return &Verifier{
		secret: []byte(cfg.Secret),
		policy: tokenPolicy{
			issuer:    strings.TrimSpace(cfg.Issuer),
			audience:  strings.TrimSpace(cfg.Audience),
			clockSkew: skew,
			algorithm: jwa.HS256,
		},
		now: time.Now,
	}, nil
}

// WithNow overrides the clock, for tests.
func (v *Verifier) WithNow(now func() time.Time) {
	if now != nil {
		v.now = now
	}
}

// Parse validates token and returns its claims.
func (v *Verifier) Parse(token string) (Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return Claims{}, common.Unauthorized("missing token", nil)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return Claims{}, common.Unauthorized("invalid token", err)
	}
	if algorithm != v.policy.algorithm {
		return Claims{}, common.Unauthorized("invalid token", fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, v.secret), jwt.WithValidate(false))
	if err != nil {
		return Claims{}, common.Unauthorized("invalid token", err)
	}
	if err := v.policy.check(parsed, algorithm, v.now()); err != nil {
		return Claims{}, common.Unauthorized("invalid token", err)
	}
	return Claims{UserID: parsed.Subject(), Roles: rolesFrom(parsed)}, nil
}

// Sign issues a token for claims. The storefront never issues tokens in
// production; this backs local tooling and tests.
func (v *Verifier) Sign(claims Claims, ttl time.Duration) (string, error) {
	now := v.now()
	builder := jwt.NewBuilder().
		Subject(claims.UserID).
		IssuedAt(now).
		NotBefore(now.Add(-v.policy.clockSkew)).
		Expiration(now.Add(ttl))
	if v.policy.issuer != "" {
		builder = builder.Issuer(v.policy.issuer)
	}
	if v.policy.audience != "" {
		builder = builder.Audience([]string{v.policy.audience})
	}
	if len(claims.Roles) > 0 {
		builder = builder.Claim(rolesClaim, claims.Roles)
	}
	token, err := builder.Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(v.policy.algorithm, v.secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

func rolesFrom(tok jwt.Token) []string {
	raw, ok := tok.Get(rolesClaim)
	if !ok {
		return nil
	}
	switch vals := raw.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, v := range vals {
			if s, ok := v.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		return strings.Fields(vals)
	default:
		return nil
	}
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if alg == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if algorithm == "" {
			algorithm = alg
		} else if algorithm != alg {
			return "", fmt.Errorf("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}
