package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/golang-jwt/jwt/v5"

	"github.com/johndosdos/haven/internal/model"
)

type ContextKey string

const ClaimsKey ContextKey = "claims"

var ErrNoClaims = errors.New("internal/auth: no claims in context")

func HashPassword(password string) (string, error) {
	hashed_pw, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return "", fmt.Errorf("internal/auth: pw hash failed: %w", err)
	}

	return hashed_pw, nil
}

func CheckPasswordHash(password, hash string) (bool, error) {
	isMatch, err := argon2id.ComparePasswordAndHash(password, hash)
	if err != nil {
		return false, fmt.Errorf("internal/auth: pw and hash comparison failed: %w", err)
	}
	if !isMatch {
		return false, errors.New("internal/auth: pw and hash do not match")
	}

	return isMatch, nil
}

// Claims is the payload of an access token. Role is checked server-side on
// every privileged request.
type Claims struct {
	Role  model.Role `json:"role"`
	Email string     `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) HasRole(roles ...model.Role) bool {
	for _, r := range roles {
		if c.Role == r {
			return true
		}
	}
	return false
}

// Identity is who an access token is issued to.
type Identity struct {
	Subject string
	Role    model.Role
	Email   string
}

func MakeJWT(id Identity, issuer, tokenSecret string, expiresIn time.Duration) (string, error) {
	if id.Subject == "" {
		return "", errors.New("internal/auth: subject is required")
	}

	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:  id.Role,
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   id.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	})

	return token.SignedString([]byte(tokenSecret))
}

func ValidateJWT(tokenString, tokenSecret string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (any, error) { return []byte(tokenSecret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("internal/auth: failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, errors.New("internal/auth: token is invalid")
	}

	if claims.Subject == "" {
		return nil, errors.New("subject claim is missing")
	}

	switch claims.Role {
	case model.RoleUser, model.RoleTherapist, model.RoleAdmin:
	default:
		return nil, fmt.Errorf("internal/auth: unknown role %q", claims.Role)
	}

	return claims, nil
}

type providerClaims struct {
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
	jwt.RegisteredClaims
}

// VerifyProviderToken checks the identity provider's HS256 access token and
// maps it to a user profile. The signature is always verified.
func VerifyProviderToken(tokenString, secret string, now time.Time) (model.User, error) {
	if secret == "" {
		return model.User{}, errors.New("internal/auth: provider secret is not configured")
	}

	claims := &providerClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return model.User{}, fmt.Errorf("internal/auth: invalid provider token: %w", err)
	}
	if claims.Subject == "" {
		return model.User{}, errors.New("subject claim is missing")
	}

	meta := func(key string) string {
		v, _ := claims.UserMetadata[key].(string)
		return v
	}

	user := model.User{
		ID:       claims.Subject,
		Email:    claims.Email,
		Username: meta("user_name"),
		Name:     meta("full_name"),
		Gender:   meta("gender"),
	}
	if user.Username == "" {
		user.Username, _, _ = strings.Cut(claims.Email, "@")
	}
	if user.Username == "" {
		user.Username = "user"
	}
	if user.Name == "" {
		user.Name = meta("name")
	}
	if birth, err := time.Parse(model.DateLayout, meta("birthdate")); err == nil {
		age := ageOn(birth, now)
		user.Age = &age
	}

	return user, nil
}

func ageOn(birth, today time.Time) int {
	age := today.Year() - birth.Year()
	if today.Month() < birth.Month() || (today.Month() == birth.Month() && today.Day() < birth.Day()) {
		age--
	}
	return age
}

func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, c)
}

func GetClaimsFromContext(ctx context.Context) (*Claims, error) {
	c, ok := ctx.Value(ClaimsKey).(*Claims)
	if !ok || c == nil {
		return nil, ErrNoClaims
	}
	return c, nil
}
