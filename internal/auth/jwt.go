package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openacoustics/audiomoth-configurator/internal/config"
	"github.com/openacoustics/audiomoth-configurator/pkg/crypto"
)

const issuer = "audiomoth-configurator"

// ErrInvalidCredentials is returned when a login does not match the operator
var ErrInvalidCredentials = errors.New("invalid credentials")

// secretSize is the number of random bytes in a generated signing secret.
const secretSize = 32

// JWTManager manages operator tokens
type JWTManager struct {
	config   *config.JWTConfig
	operator *config.OperatorConfig
	secret   []byte
	now      func() time.Time
}

// NewJWTManager creates a new JWT manager. When authentication is enabled
// without a configured secret, a random one is generated and tokens do
// not survive a restart.
func NewJWTManager(cfg *config.JWTConfig, operator *config.OperatorConfig) (*JWTManager, error) {
	m := &JWTManager{
		config:   cfg,
		operator: operator,
		secret:   []byte(cfg.Secret),
		now:      time.Now,
	}
	if m.Enabled() && cfg.Secret == "" {
		secret, err := crypto.GenerateSecret(secretSize)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		m.secret = []byte(secret)
		log.Warn().Msg("jwt.secret not set, using a generated secret; tokens are invalidated on restart")
	}
	return m, nil
}

// Claims represents JWT claims
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Refresh  bool   `json:"refresh,omitempty"`
}

// Enabled reports whether a password hash is configured. Without one the
// API runs unauthenticated.
func (m *JWTManager) Enabled() bool {
	return m.operator != nil && m.operator.PasswordHash != ""
}

// Login checks the operator credentials and issues a token pair
func (m *JWTManager) Login(username, password string) (string, string, error) {
	if !m.Enabled() || username != m.operator.Username || !m.VerifyPassword(password, m.operator.PasswordHash) {
		return "", "", ErrInvalidCredentials
	}
	return m.GenerateTokenPair(username)
}

// GenerateTokenPair generates access and refresh tokens
func (m *JWTManager) GenerateTokenPair(username string) (string, string, error) {
	now := m.now()

	access, err := m.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
		Username: username,
	})
	if err != nil {
		return "", "", fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := m.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.RefreshTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			ID:        uuid.New().String(),
		},
		Username: username,
		Refresh:  true,
	})
	if err != nil {
		return "", "", fmt.Errorf("sign refresh token: %w", err)
	}

	return access, refresh, nil
}

func (m *JWTManager) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *JWTManager) parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// ValidateToken validates an access token
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	claims, err := m.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Refresh {
		return nil, fmt.Errorf("refresh token used as access token")
	}
	return claims, nil
}

// RefreshToken exchanges a refresh token for a new pair
func (m *JWTManager) RefreshToken(refreshTokenString string) (string, string, error) {
	claims, err := m.parse(refreshTokenString)
	if err != nil {
		return "", "", err
	}
	if !claims.Refresh {
		return "", "", fmt.Errorf("invalid refresh token")
	}
	if m.operator == nil || claims.Subject != m.operator.Username {
		return "", "", fmt.Errorf("unknown operator %q", claims.Subject)
	}
	return m.GenerateTokenPair(claims.Subject)
}

// VerifyPassword verifies a password against a hash
func (m *JWTManager) VerifyPassword(password, hash string) bool {
	return crypto.VerifyPassword(password, hash)
}
