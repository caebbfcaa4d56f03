// Package identity issues and checks sign-in credentials.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/member-dashboard-api/internal/config"
	"github.com/member-dashboard-api/internal/repository"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// Issuer is the iss claim of every token
const Issuer = "member-dashboard-api"

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrTokenRevoked       = errors.New("token has been signed out")
	ErrCurrentPassword    = errors.New("current password is incorrect")

	// ErrCrossAccountPassword refuses changing another account's password.
	ErrCrossAccountPassword = errors.New("passwords can only be changed by their owner; ask the account holder to reset it or contact the system administrator")

	// ErrIdentityDeletionUnsupported marks the manual step left after an account is deleted.
	ErrIdentityDeletionUnsupported = errors.New("sign-in credentials are not removed automatically; delete them manually through the identity administration tools")
)

// Session is a signed-in account
type Session struct {
	Token     string    `json:"token"`
	AccountID string    `json:"uid"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Provider signs accounts in and out
type Provider struct {
	accounts repository.AccountRepository
	creds    repository.CredentialRepository
	secret   []byte
	ttl      time.Duration
	cost     int
	now      func() time.Time
	log      zerolog.Logger

	// jti -> struct{}, each entry lives until its token would expire
	revoked *cache.Cache
}

// New creates a Provider
func New(accounts repository.AccountRepository, creds repository.CredentialRepository, cfg config.AuthConfig, log zerolog.Logger) *Provider {
	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Provider{
		accounts: accounts,
		creds:    creds,
		secret:   []byte(cfg.JWTSecret),
		ttl:      cfg.TokenTTL,
		cost:     cost,
		now:      time.Now,
		log:      log.With().Str("component", "identity").Logger(),
		revoked:  cache.New(cache.NoExpiration, 10*time.Minute),
	}
}

// WithClock replaces the time source
func (p *Provider) WithClock(now func() time.Time) *Provider {
	p.now = now
	return p
}

// SignIn checks email and password and issues a token. The last-login
// stamp is best effort.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	account, err := p.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if account == nil {
		return nil, ErrInvalidCredentials
	}

	hash, err := p.creds.Get(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("lookup credential: %w", err)
	}
	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	session, err := p.issue(account.ID)
	if err != nil {
		return nil, err
	}

	if err := p.accounts.UpdateLastLogin(ctx, account.ID, p.now()); err != nil {
		p.log.Warn().Err(err).Str("account_id", account.ID).Msg("Failed to update last login")
	}

	p.log.Info().Str("account_id", account.ID).Msg("Signed in")
	return session, nil
}

func (p *Provider) issue(accountID string) (*Session, error) {
	now := p.now()
	expires := now.Add(p.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   accountID,
		ID:        uuid.New().String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Session{Token: token, AccountID: accountID, ExpiresAt: expires}, nil
}

func (p *Provider) parse(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithTimeFunc(p.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Verify returns the account id a token was issued to
func (p *Provider) Verify(token string) (string, error) {
	claims, err := p.parse(token)
	if err != nil {
		return "", err
	}

	if _, revoked := p.revoked.Get(claims.ID); revoked {
		return "", ErrTokenRevoked
	}
	return claims.Subject, nil
}

// SignOut revokes a token until it would have expired anyway
func (p *Provider) SignOut(ctx context.Context, token string) error {
	claims, err := p.parse(token)
	if err != nil {
		return err
	}

	// A token past its expiry already fails parse, so it needs no entry.
	if remaining := claims.ExpiresAt.Time.Sub(p.now()); remaining > 0 {
		p.revoked.Set(claims.ID, struct{}{}, remaining)
	}

	p.log.Info().Str("account_id", claims.Subject).Msg("Signed out")
	return nil
}

// Register stores the first credential of an account
func (p *Provider) Register(ctx context.Context, accountID, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return p.creds.Set(ctx, accountID, string(hash))
}

// UpdatePassword replaces the caller's own password after re-checking the
// current one.
func (p *Provider) UpdatePassword(ctx context.Context, actorID, targetID, current, next string) error {
	if actorID == "" || actorID != targetID {
		return ErrCrossAccountPassword
	}

	hash, err := p.creds.Get(ctx, actorID)
	if err != nil {
		return fmt.Errorf("lookup credential: %w", err)
	}
	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(current)) != nil {
		return ErrCurrentPassword
	}

	if err := p.Register(ctx, actorID, next); err != nil {
		return err
	}
	p.log.Info().Str("account_id", actorID).Msg("Password updated")
	return nil
}

// DeleteIdentity always refuses; see ErrIdentityDeletionUnsupported
func (p *Provider) DeleteIdentity(ctx context.Context, accountID string) error {
	p.log.Warn().Str("account_id", accountID).Msg("Identity deletion requires a manual step")
	return ErrIdentityDeletionUnsupported
}
