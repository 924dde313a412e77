package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Identity 是身份提供方给出的调用者信息，只使用 sub 与 email 两个声明。
type Identity struct {
	Subject string
	Email   string
}

// IdentityClaims 表示身份令牌中的业务字段。
type IdentityClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// AuthService 负责校验（以及在开发环境签发）RS256 身份令牌。
type AuthService struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
	audience   string
}

// NewAuthService 解析 PEM 公钥（必需）与私钥（可选）并构造服务实例。
func NewAuthService(publicKeyPEM, privateKeyPEM []byte, issuer, audience string) (*AuthService, error) {
	if len(publicKeyPEM) == 0 {
		return nil, errors.New("public key pem is required")
	}

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse rsa public key: %w", err)
	}

	s := &AuthService{
		publicKey: publicKey,
		issuer:    strings.TrimSpace(issuer),
		audience:  strings.TrimSpace(audience),
	}

	if len(privateKeyPEM) > 0 {
		privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("parse rsa private key: %w", err)
		}
		s.privateKey = privateKey
	}

	return s, nil
}

// NewAuthServiceFromFiles 从磁盘读取密钥；privatePath 为空时只能校验不能签发。
func NewAuthServiceFromFiles(publicPath, privatePath, issuer, audience string) (*AuthService, error) {
	publicPEM, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("read public key %q: %w", publicPath, err)
	}
	var privatePEM []byte
	if strings.TrimSpace(privatePath) != "" {
		privatePEM, err = os.ReadFile(privatePath)
		if err != nil {
			return nil, fmt.Errorf("read private key %q: %w", privatePath, err)
		}
	}
	return NewAuthService(publicPEM, privatePEM, issuer, audience)
}

// ValidateToken 解析并验证身份令牌，返回调用者身份。
func (s *AuthService) ValidateToken(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, errors.New("token string is empty")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &IdentityClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.publicKey, nil
	}, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*IdentityClaims)
	if !ok || !token.Valid {
		return Identity{}, errors.New("invalid token claims")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Identity{}, errors.New("token subject is empty")
	}

	return Identity{Subject: claims.Subject, Email: claims.Email}, nil
}

// IssueToken 为给定身份签发令牌，仅用于管理工具和测试。
func (s *AuthService) IssueToken(id Identity, ttl time.Duration) (string, error) {
	if s.privateKey == nil {
		return "", errors.New("private key not configured")
	}
	now := time.Now()
	claims := IdentityClaims{
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject,
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
