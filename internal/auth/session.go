package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	CookieName        = "planny_session"
	DefaultSessionTTL = 12 * time.Hour
	sessionIssuer     = "planner"
)

type Claims struct {
	User      string
	Role      Role
	JTI       string
	ExpiresAt time.Time
}

type sessionClaims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// Sessions issues and validates the HS256 tokens carried in the session
// cookie.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessions(secret string, ttl time.Duration, now func() time.Time) (*Sessions, error) {
	if secret == "" {
		return nil, errors.New("session secret is empty")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Sessions{secret: []byte(secret), ttl: ttl, now: now}, nil
}

func (s *Sessions) TTL() time.Duration {
	return s.ttl
}

func (s *Sessions) Issue(user string, role Role) (string, Claims, error) {
	now := s.now().UTC()
	claims := sessionClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   user,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", Claims{}, err
	}
	return token, Claims{User: user, Role: role, JTI: claims.ID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

func (s *Sessions) Parse(raw string) (Claims, error) {
	var out sessionClaims
	token, err := jwt.ParseWithClaims(raw, &out, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Claims{}, err
	}
	if !token.Valid || out.Subject == "" {
		return Claims{}, jwt.ErrTokenInvalidClaims
	}
	return Claims{User: out.Subject, Role: out.Role, JTI: out.ID, ExpiresAt: out.ExpiresAt.Time}, nil
}
