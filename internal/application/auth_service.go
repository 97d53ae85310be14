package application

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/radiocast/backend/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrAuthDisabled       = errors.New("authentication is disabled")
)

const (
	tokenIssuer      = "radiocast"
	tokenUseAccess   = "access"
	tokenUseRefresh  = "refresh"
	defaultTokenLife = 24 * time.Hour
)

// AuthOptions configures the single admin account and token lifetimes
type AuthOptions struct {
	JWTSecret         string
	AdminEmail        string
	AdminPasswordHash string
	TokenExpiration   time.Duration
	RefreshExpiration time.Duration
}

// AuthService handles authentication business logic
type AuthService struct {
	jwtSecret         []byte
	adminEmail        string
	adminPasswordHash []byte
	tokenExpiration   time.Duration
	refreshExpiration time.Duration
	now               func() time.Time
}

// TokenPair represents access and refresh tokens
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Claims represents JWT claims
type Claims struct {
	Email string          `json:"email"`
	Role  domain.UserRole `json:"role"`
	Use   string          `json:"use"`
	jwt.RegisteredClaims
}

// NewAuthService creates a new auth service
func NewAuthService(opts AuthOptions) *AuthService {
	if opts.TokenExpiration <= 0 {
		opts.TokenExpiration = defaultTokenLife
	}
	if opts.RefreshExpiration <= 0 {
		opts.RefreshExpiration = 7 * defaultTokenLife
	}
	return &AuthService{
		jwtSecret:         []byte(opts.JWTSecret),
		adminEmail:        strings.ToLower(strings.TrimSpace(opts.AdminEmail)),
		adminPasswordHash: []byte(opts.AdminPasswordHash),
		tokenExpiration:   opts.TokenExpiration,
		refreshExpiration: opts.RefreshExpiration,
		now:               time.Now,
	}
}

// Enabled reports whether a signing secret is configured
func (s *AuthService) Enabled() bool {
	return len(s.jwtSecret) > 0
}

// Login authenticates the admin account and returns tokens
func (s *AuthService) Login(email, password string) (*TokenPair, error) {
	if !s.Enabled() {
		return nil, ErrAuthDisabled
	}
	if len(s.adminPasswordHash) == 0 || strings.ToLower(strings.TrimSpace(email)) != s.adminEmail {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(s.adminPasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.generateTokenPair(domain.Principal{Email: s.adminEmail, Role: domain.UserRoleAdmin})
}

// RefreshToken validates a refresh token and returns a new token pair
func (s *AuthService) RefreshToken(refreshToken string) (*TokenPair, error) {
	claims, err := s.parse(refreshToken, tokenUseRefresh)
	if err != nil {
		return nil, err
	}
	return s.generateTokenPair(domain.Principal{Email: claims.Email, Role: claims.Role})
}

// ValidateToken validates an access token
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	return s.parse(tokenString, tokenUseAccess)
}

// IssueToken signs a single access token for p valid for ttl
func (s *AuthService) IssueToken(p domain.Principal, ttl time.Duration) (string, error) {
	if !s.Enabled() {
		return "", ErrAuthDisabled
	}
	if !p.Role.Valid() {
		return "", errors.New("unknown role " + string(p.Role))
	}
	return s.sign(p, tokenUseAccess, s.now(), ttl)
}

// HashPassword returns the bcrypt hash stored as auth.admin_password_hash
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (s *AuthService) parse(tokenString, use string) (*Claims, error) {
	if !s.Enabled() {
		return nil, ErrAuthDisabled
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Use != use || !claims.Role.Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *AuthService) sign(p domain.Principal, use string, now time.Time, ttl time.Duration) (string, error) {
	claims := &Claims{
		Email: p.Email,
		Role:  p.Role,
		Use:   use,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   p.Email,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

// generateTokenPair creates access and refresh tokens
func (s *AuthService) generateTokenPair(p domain.Principal) (*TokenPair, error) {
	now := s.now()
	expiresAt := now.Add(s.tokenExpiration)

	access, err := s.sign(p, tokenUseAccess, now, s.tokenExpiration)
	if err != nil {
		return nil, err
	}
	refresh, err := s.sign(p, tokenUseRefresh, now, s.refreshExpiration)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	}, nil
}
