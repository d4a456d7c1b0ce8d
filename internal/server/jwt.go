package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jonathan/letterlab/internal/config"
	"github.com/jonathan/letterlab/internal/server/middleware"
)

// Roles carried in session tokens
const (
	RoleParticipant = "participant"
	RoleAdmin       = "admin"
)

// Cookie names for the two kinds of session
const (
	ParticipantCookie = "lab_session"
	AdminCookie       = "admin_session"
)

// Claims identify a participant (by access code) or the admin (by username).
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

var (
	_ jwt.Claims           = (*Claims)(nil)
	_ middleware.Principal = (*Claims)(nil)
)

// GetRole implements middleware.Principal
func (c *Claims) GetRole() string { return c.Role }

// PrincipalSubject implements middleware.Principal. The access code for
// participants, the username for the admin.
func (c *Claims) PrincipalSubject() string { return c.Subject }

// JWTService signs and verifies session tokens.
type JWTService struct {
	config *config.JWTConfig
	now    func() time.Time
}

// NewJWTService creates a new JWT service with the given configuration.
func NewJWTService(cfg *config.JWTConfig) *JWTService {
	return &JWTService{config: cfg, now: time.Now}
}

// expiration is how long tokens of role and their cookies live
func (s *JWTService) expiration(role string) time.Duration {
	if role == RoleAdmin {
		return s.config.AdminTTL()
	}
	return s.config.ParticipantTTL()
}

// GenerateToken signs a token for subject in role.
func (s *JWTService) GenerateToken(role, subject string) (string, error) {
	now := s.now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiration(role))),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken verifies a token and returns its claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("token string is empty")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("token expired: %w", err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, fmt.Errorf("invalid token signature: %w", err)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("malformed token: %w", err)
		}
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}
	return claims, nil
}

// AsTokenValidator adapts the service to middleware.TokenValidator.
func (s *JWTService) AsTokenValidator() middleware.TokenValidator {
	return &jwtServiceValidator{service: s}
}

type jwtServiceValidator struct {
	service *JWTService
}

func (v *jwtServiceValidator) ValidateToken(tokenString string) (middleware.Principal, error) {
	claims, err := v.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// sessionCookie builds the cookie that carries a signed token for role
func (s *Server) sessionCookie(role, token string) *http.Cookie {
	name := ParticipantCookie
	if role == RoleAdmin {
		name = AdminCookie
	}
	return &http.Cookie{
		Name:     name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.jwt.expiration(role).Seconds()),
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}
