package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"kasirinaja/terminal/internal/domain"
)

var (
	ErrForbidden    = errors.New("role is not allowed to bill")
	ErrNoToken      = errors.New("no access token")
	ErrTokenExpired = errors.New("access token expired")
)

const (
	RoleAdmin    = "admin"
	RoleOwner    = "owner"
	RoleManager  = "manager"
	RoleEmployee = "employee"
)

var billingRoles = map[string]bool{
	RoleAdmin:    true,
	RoleManager:  true,
	RoleEmployee: true,
}

// terminalClaims covers both the backend's simplejwt access tokens (user_id)
// and tokens that carry the role directly.
type terminalClaims struct {
	jwtlib.RegisteredClaims
	UserID   any    `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
}

// AuthContext is the bearer identity handed to the API client and the
// billing controller. It is immutable once built.
type AuthContext struct {
	token     string
	actor     domain.Actor
	expiresAt time.Time
}

// New builds an AuthContext from an access token. The token is decoded
// without signature verification: the backend verifies it, the terminal only
// reads expiry and identity. role and username fill in what the claims lack.
func New(token string, role string, username string) (AuthContext, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return AuthContext{}, ErrNoToken
	}

	claims := &terminalClaims{}
	parser := jwtlib.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return AuthContext{}, fmt.Errorf("decode access token: %w", err)
	}

	actor := domain.Actor{
		Username: strings.TrimSpace(claims.Username),
		Role:     strings.ToLower(strings.TrimSpace(claims.Role)),
	}
	if actor.Username == "" {
		actor.Username = strings.TrimSpace(username)
	}
	if actor.Username == "" {
		if sub, err := claims.GetSubject(); err == nil && sub != "" {
			actor.Username = sub
		} else if claims.UserID != nil {
			actor.Username = fmt.Sprintf("user-%v", claims.UserID)
		}
	}
	if actor.Role == "" {
		actor.Role = strings.ToLower(strings.TrimSpace(role))
	}

	ctx := AuthContext{token: token, actor: actor}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		ctx.expiresAt = exp.Time
	}
	return ctx, nil
}

// FromLogin builds the context from a login response.
func FromLogin(resp domain.LoginResponse, username string) (AuthContext, error) {
	role := resp.Role
	if resp.User != nil {
		if role == "" {
			role = resp.User.Role
		}
		if resp.User.Username != "" {
			username = resp.User.Username
		}
	}
	return New(resp.Access, role, username)
}

func (a AuthContext) Token() string {
	return a.token
}

func (a AuthContext) Actor() domain.Actor {
	return a.actor
}

func (a AuthContext) ExpiresAt() time.Time {
	return a.expiresAt
}

func (a AuthContext) AuthorizationHeader() string {
	if a.token == "" {
		return ""
	}
	return "Bearer " + a.token
}

// Valid reports whether the token is present and not past its expiry.
func (a AuthContext) Valid(now time.Time) error {
	if a.token == "" {
		return ErrNoToken
	}
	if !a.expiresAt.IsZero() && !now.Before(a.expiresAt) {
		return ErrTokenExpired
	}
	return nil
}

// RequireBilling gates the billing screen. Owners see reports only.
func (a AuthContext) RequireBilling() error {
	if !billingRoles[a.actor.Role] {
		return fmt.Errorf("%w: %q", ErrForbidden, a.actor.Role)
	}
	return nil
}
