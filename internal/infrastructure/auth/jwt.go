// Package auth validates the bearer tokens presented to the engine's API.
package auth

import (
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/erp/settlement/internal/infrastructure/config"
)

// Role names carried in the roles claim
const (
	// RoleOperator may act on every partner and account
	RoleOperator = "operator"
	// RolePartner is scoped to the partner_id claim
	RolePartner = "partner"
	// RoleAccount is scoped to the account_id claim
	RoleAccount = "account"
)

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrMissingScope     = errors.New("token carries no role")
	ErrMissingPartnerID = errors.New("missing partner_id in claims")
	ErrMissingAccountID = errors.New("missing account_id in claims")
)

// Claims represents the engine's JWT claims
type Claims struct {
	jwt.RegisteredClaims
	PartnerID string   `json:"partner_id,omitempty"`
	AccountID string   `json:"account_id,omitempty"`
	Roles     []string `json:"roles"`
}

// JWTService signs and validates HS256 tokens
type JWTService struct {
	secret []byte
	issuer string
}

// NewJWTService creates a new JWT service
func NewJWTService(cfg config.JWTConfig) *JWTService {
	return &JWTService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
	}
}

// IssueInput describes the subject of a new token
type IssueInput struct {
	Subject   string
	PartnerID uuid.UUID
	AccountID uuid.UUID
	Roles     []string
	TTL       time.Duration
}

// Issue signs a token. Tokens are normally minted by the identity provider;
// this is used by tooling and tests.
func (s *JWTService) Issue(input IssueInput) (string, time.Time, error) {
	now := time.Now()
	ttl := input.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	expiresAt := now.Add(ttl)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.issuer,
			Subject:   input.Subject,
			Audience:  jwt.ClaimStrings{s.issuer},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Roles: input.Roles,
	}
	if input.PartnerID != uuid.Nil {
		claims.PartnerID = input.PartnerID.String()
	}
	if input.AccountID != uuid.Nil {
		claims.AccountID = input.AccountID.String()
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Validate parses a token and checks its signature, lifetime and scope claims
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, ErrTokenNotYetValid
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if err := claims.validateScope(); err != nil {
		return nil, err
	}
	return claims, nil
}

func (c *Claims) validateScope() error {
	if len(c.Roles) == 0 {
		return ErrMissingScope
	}
	if c.HasRole(RolePartner) {
		if _, err := uuid.Parse(c.PartnerID); err != nil {
			return ErrMissingPartnerID
		}
	}
	if c.HasRole(RoleAccount) {
		if _, err := uuid.Parse(c.AccountID); err != nil {
			return ErrMissingAccountID
		}
	}
	return nil
}

// HasRole reports whether the token carries role
func (c *Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// IsOperator reports whether the token may act on every resource
func (c *Claims) IsOperator() bool {
	return c.HasRole(RoleOperator)
}

// CanAccessPartner reports whether the token may read or act for the partner
func (c *Claims) CanAccessPartner(partnerID uuid.UUID) bool {
	if c.IsOperator() {
		return true
	}
	return c.HasRole(RolePartner) && c.PartnerID == partnerID.String()
}

// CanAccessAccount reports whether the token may read or act for the account
func (c *Claims) CanAccessAccount(accountID uuid.UUID) bool {
	if c.IsOperator() {
		return true
	}
	return c.HasRole(RoleAccount) && c.AccountID == accountID.String()
}

// AccountUUID returns the account the token is scoped to, or uuid.Nil
func (c *Claims) AccountUUID() uuid.UUID {
	id, err := uuid.Parse(c.AccountID)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// GetExpiresAtTime returns the token's expiration time as time.Time
func (c *Claims) GetExpiresAtTime() time.Time {
	if c.ExpiresAt != nil {
		return c.ExpiresAt.Time
	}
	return time.Time{}
}
