package utils

import (
	stderrors "errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/wfunc/echechess/internal/errors"
)

const tokenIssuer = "echechess"

// SessionClaims HTTP会话令牌
type SessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// TokenManager 签发和校验会话令牌
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager 创建令牌管理器
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL 令牌有效期
func (m *TokenManager) TTL() time.Duration {
	return m.ttl
}

// Issue 为新会话签发令牌，返回会话ID、令牌和过期时间
func (m *TokenManager) Issue() (string, string, time.Time, error) {
	sessionID := uuid.NewString()
	token, expiresAt, err := m.IssueFor(sessionID)
	return sessionID, token, expiresAt, err
}

// IssueFor 为已有会话续签令牌
func (m *TokenManager) IssueFor(sessionID string) (string, time.Time, error) {
	if sessionID == "" {
		return "", time.Time{}, errors.New(errors.ErrInvalidArgument, "会话ID为空")
	}

	now := m.now()
	expiresAt := now.Add(m.ttl)
	claims := &SessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   sessionID,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, errors.ErrTokenInvalid, "签名失败")
	}
	return signed, expiresAt, nil
}

// Parse 校验令牌并返回会话信息
func (m *TokenManager) Parse(tokenString string) (*SessionClaims, error) {
	if tokenString == "" {
		return nil, errors.New(errors.ErrSessionRequired)
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, stderrors.New("unexpected signing method")
		}
		return m.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.Wrap(err, errors.ErrTokenExpired)
		}
		return nil, errors.Wrap(err, errors.ErrTokenInvalid)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return nil, errors.New(errors.ErrTokenInvalid)
	}
	return claims, nil
}
