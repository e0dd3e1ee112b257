package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ajolla/ottowrite-sub001/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "referral-engine"

// Claims carries the subject and its roles. Admin tokens also carry the
// admin user id and username.
type Claims struct {
	Roles    []Role `json:"roles"`
	AdminID  uint   `json:"admin_id,omitempty"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

type JWTManager struct {
	secretKey     []byte
	tokenDuration time.Duration
	now           func() time.Time
}

func NewJWTManager(secretKey string, tokenDuration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:     []byte(secretKey),
		tokenDuration: tokenDuration,
		now:           time.Now,
	}
}

func (m *JWTManager) TokenDuration() time.Duration {
	return m.tokenDuration
}

// GenerateToken issues a token for an admin console user.
func (m *JWTManager) GenerateToken(admin *models.AdminUser) (string, error) {
	return m.sign(Claims{
		Roles:    RolesForAdmin(admin.Role),
		AdminID:  admin.ID,
		Username: admin.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "admin:" + strconv.FormatUint(uint64(admin.ID), 10),
		},
	})
}

// IssueToken issues a token for an arbitrary subject, e.g. an end user id or
// a backend service name.
func (m *JWTManager) IssueToken(subject string, roles ...Role) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("subject is required")
	}
	return m.sign(Claims{
		Roles:            roles,
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
	})
}

func (m *JWTManager) sign(claims Claims) (string, error) {
	now := m.now()
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(m.tokenDuration))
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = jwt.NewNumericDate(now)
	claims.Issuer = issuer

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.secretKey, nil
		},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}

	return claims, nil
}

// RefreshToken re-signs a still valid token with a fresh expiry.
func (m *JWTManager) RefreshToken(tokenString string) (string, error) {
	claims, err := m.ValidateToken(tokenString)
	if err != nil {
		return "", err
	}

	return m.sign(Claims{
		Roles:            claims.Roles,
		AdminID:          claims.AdminID,
		Username:         claims.Username,
		RegisteredClaims: jwt.RegisteredClaims{Subject: claims.Subject},
	})
}

func ExtractTokenFromBearer(authHeader string) (string, error) {
	const bearerPrefix = "Bearer "

	if len(authHeader) < len(bearerPrefix) {
		return "", fmt.Errorf("invalid authorization header")
	}

	if authHeader[:len(bearerPrefix)] != bearerPrefix {
		return "", fmt.Errorf("authorization header must start with 'Bearer '")
	}

	return authHeader[len(bearerPrefix):], nil
}
