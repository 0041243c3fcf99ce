package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"patientdocs/internal/config"
	"patientdocs/internal/model"
)

var (
	ErrTokenMissing = errors.New("bearer token is missing")
	ErrTokenInvalid = errors.New("bearer token is invalid")
)

// Identity is the authenticated caller, produced fresh per request.
// PatientID is set only for identities linked to a patient record.
type Identity struct {
	UserID    string
	Email     string
	Role      string
	PatientID string
	FirstName string
	LastName  string
}

// Resolver turns a bearer credential into an authenticated identity.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*Identity, error)
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Email      string `json:"email"`
	Role       string `json:"role"`
	PatientID  string `json:"patient_id"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

// JWTResolver verifies HMAC-signed access tokens issued by the identity service.
type JWTResolver struct {
	secret []byte
	issuer string
}

// NewJWTResolver constructs a resolver from auth config. The secret is required.
func NewJWTResolver(cfg config.AuthConfig) (*JWTResolver, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("auth jwt secret is required")
	}
	return &JWTResolver{secret: []byte(cfg.JWTSecret), issuer: cfg.Issuer}, nil
}

var _ Resolver = (*JWTResolver)(nil)

// Resolve parses and verifies the token and maps its claims onto an Identity.
func (r *JWTResolver) Resolve(_ context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrTokenMissing
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}

	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return r.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}

	return &Identity{
		UserID:    claims.Subject,
		Email:     claims.Email,
		Role:      claims.Role,
		PatientID: claims.PatientID,
		FirstName: claims.GivenName,
		LastName:  claims.FamilyName,
	}, nil
}

// CanAccessPatient decides whether the identity may act on the target patient's
// records. The patient role is restricted to its own linked record; any other
// role passes.
func CanAccessPatient(id *Identity, patientID string) bool {
	if id == nil {
		return false
	}
	if id.Role != model.RolePatient {
		return true
	}
	return id.PatientID != "" && id.PatientID == patientID
}
