package adminauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	redrepo "github.com/nicklasc86/travelbot/internal/repo/redis"
)

const RoleAdmin = "ADMIN"

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrSessionExpired = errors.New("session expired")
	ErrUnavailable    = errors.New("admin auth is unavailable")
	ErrOTPRequired    = errors.New("one-time code required")
)

// SessionStore is optional. Without it tokens stay valid until they expire.
type SessionStore interface {
	Create(ctx context.Context, sid, username string, ttl time.Duration) error
	Get(ctx context.Context, sid string) (string, error)
	Delete(ctx context.Context, sid string) error
}

type Config struct {
	Username     string
	PasswordHash string
	JWTSecret    string
	TokenTTL     time.Duration
	// TOTPSecret enables a second factor on login when set.
	TOTPSecret   string
}

type Service struct {
	username     string
	passwordHash []byte
	secret       []byte
	ttl          time.Duration
	totpSecret   string
	sessions     SessionStore
	now          func() time.Time
}

type Claims struct {
	Username  string
	Role      string
	SID       string
	ExpiresAt time.Time
}

type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type tokenClaims struct {
	Role string `json:"role"`
	SID  string `json:"sid"`
	jwt.RegisteredClaims
}

func NewService(cfg Config, sessions SessionStore) *Service {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Service{
		username:     strings.TrimSpace(cfg.Username),
		passwordHash: []byte(strings.TrimSpace(cfg.PasswordHash)),
		secret:       []byte(strings.TrimSpace(cfg.JWTSecret)),
		ttl:          ttl,
		totpSecret:   strings.TrimSpace(cfg.TOTPSecret),
		sessions:     sessions,
		now:          time.Now,
	}
}

func (s *Service) IsConfigured() bool {
	return s != nil && s.username != "" && len(s.passwordHash) > 0 && len(s.secret) > 0
}

// Login checks the password and, when a TOTP secret is configured, the one-time code.
// A correct password without a code yields ErrOTPRequired so clients can prompt for it.
func (s *Service) Login(ctx context.Context, username, password, otpCode string) (Token, error) {
	if !s.IsConfigured() {
		return Token{}, ErrUnavailable
	}

	userOK := subtle.ConstantTimeCompare([]byte(strings.TrimSpace(username)), []byte(s.username)) == 1
	passErr := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password))
	if !userOK || passErr != nil {
		return Token{}, ErrUnauthorized
	}

	now := s.now().UTC()
	if s.totpSecret != "" {
		if strings.TrimSpace(otpCode) == "" {
			return Token{}, ErrOTPRequired
		}
		if !validTOTP(s.totpSecret, otpCode, now) {
			return Token{}, ErrUnauthorized
		}
	}

	sid := uuid.NewString()
	expiresAt := now.Add(s.ttl)

	if s.sessions != nil {
		if err := s.sessions.Create(ctx, sid, s.username, s.ttl); err != nil {
			return Token{}, fmt.Errorf("create admin session: %w", err)
		}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Role: RoleAdmin,
		SID:  sid,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.username,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign admin token: %w", err)
	}

	return Token{AccessToken: signed, ExpiresAt: expiresAt}, nil
}

func (s *Service) ValidateAccessToken(ctx context.Context, accessToken string) (Claims, error) {
	if !s.IsConfigured() {
		return Claims{}, ErrUnavailable
	}

	claims, err := s.parse(accessToken)
	if err != nil {
		return Claims{}, ErrUnauthorized
	}

	if s.sessions != nil {
		if _, err := s.sessions.Get(ctx, claims.SID); err != nil {
			if errors.Is(err, redrepo.ErrSessionNotFound) {
				return Claims{}, ErrSessionExpired
			}
			return Claims{}, fmt.Errorf("get admin session: %w", err)
		}
	}
	return claims, nil
}

func (s *Service) Logout(ctx context.Context, sid string) error {
	if s.sessions == nil || strings.TrimSpace(sid) == "" {
		return nil
	}
	return s.sessions.Delete(ctx, sid)
}

func (s *Service) parse(accessToken string) (Claims, error) {
	if strings.TrimSpace(accessToken) == "" {
		return Claims{}, ErrUnauthorized
	}

	tc := &tokenClaims{}
	token, err := jwt.ParseWithClaims(accessToken, tc, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}), jwt.WithTimeFunc(s.now))
	if err != nil || token == nil || !token.Valid {
		return Claims{}, ErrUnauthorized
	}
	if strings.TrimSpace(tc.SID) == "" || tc.Subject != s.username || tc.Role != RoleAdmin || tc.ExpiresAt == nil {
		return Claims{}, ErrUnauthorized
	}

	return Claims{
		Username:  tc.Subject,
		Role:      tc.Role,
		SID:       tc.SID,
		ExpiresAt: tc.ExpiresAt.Time,
	}, nil
}

// HashPassword produces the bcrypt hash expected in admin.password_hash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
