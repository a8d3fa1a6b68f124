// Package auth turns bearer tokens into session identities.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"campusconnect/backend/internal/models"
	"campusconnect/backend/internal/storage"

	jwt "github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated is returned for missing, invalid or expired tokens and
// for tokens whose user no longer exists or is banned.
var ErrUnauthenticated = errors.New("auth: unauthenticated")

const (
	// Issuer is stamped into every token minted by this service.
	Issuer = "campusconnect"

	// DefaultTokenTTL matches the account service session length.
	DefaultTokenTTL = 7 * 24 * time.Hour

	userIDClaim = "id"
)

// Authenticator validates a credential and returns who it belongs to.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (models.Identity, error)
}

// UserStore is the part of storage the authenticator reads.
type UserStore interface {
	FindUserByID(ctx context.Context, userID string) (*models.User, error)
	IsUserBanned(ctx context.Context, userID string) (bool, error)
}

// JWTAuthenticator verifies HS256 tokens carrying the user id in the "id"
// claim and hydrates the identity from the user store.
type JWTAuthenticator struct {
	secret []byte
	users  UserStore
}

func NewJWTAuthenticator(secret string, users UserStore) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret), users: users}
}

func (a *JWTAuthenticator) Authenticate(ctx context.Context, tokenString string) (models.Identity, error) {
	if tokenString == "" {
		return models.Identity{}, fmt.Errorf("%w: token missing", ErrUnauthenticated)
	}

	userID, err := a.parse(tokenString)
	if err != nil {
		return models.Identity{}, err
	}

	user, err := a.users.FindUserByID(ctx, userID)
	if errors.Is(err, storage.ErrUserNotFound) {
		return models.Identity{}, fmt.Errorf("%w: unknown user %s", ErrUnauthenticated, userID)
	}
	if err != nil {
		return models.Identity{}, fmt.Errorf("load user %s: %w", userID, err)
	}

	banned, err := a.users.IsUserBanned(ctx, userID)
	if err != nil {
		return models.Identity{}, fmt.Errorf("check ban for %s: %w", userID, err)
	}
	if banned {
		return models.Identity{}, fmt.Errorf("%w: user %s is banned", ErrUnauthenticated, userID)
	}

	return user.Identity(), nil
}

// parse validates the signature and expiry and returns the user id claim.
func (a *JWTAuthenticator) parse(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("%w: unexpected claims", ErrUnauthenticated)
	}
	userID, ok := claims[userIDClaim].(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("%w: token has no user id", ErrUnauthenticated)
	}
	return userID, nil
}

// TokenIssuer mints tokens the authenticator accepts. The account service
// normally does this; the admin CLI uses it for development tokens.
type TokenIssuer struct {
	secret []byte
	now    func() time.Time
}

func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), now: time.Now}
}

// IssueToken signs a token for userID valid for ttl (DefaultTokenTTL when ttl <= 0).
func (i *TokenIssuer) IssueToken(userID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := i.now()
	claims := jwt.MapClaims{
		userIDClaim: userID,
		"iat":       now.Unix(),
		"exp":       now.Add(ttl).Unix(),
		"iss":       Issuer,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// ExtractToken reads the bearer token from the Authorization header, or from
// the "token" query parameter for browser WebSocket upgrades.
func ExtractToken(r *http.Request) string {
	bearerToken := r.Header.Get("Authorization")
	if strings.HasPrefix(bearerToken, "Bearer ") {
		return strings.TrimPrefix(bearerToken, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
