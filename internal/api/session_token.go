package api

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const (
	sessionCookie   = "agentshub_session"
	sessionTokenTTL = 7 * 24 * time.Hour
	tokenIssuer     = "agentshub"
)

// SessionClaims binds a token to one chat session.
type SessionClaims struct {
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// TokenService signs and checks session tokens.
type TokenService struct {
	secretKey []byte
	TTL       time.Duration
}

// NewTokenService creates a token service. An empty secret is replaced by a
// random one, so tokens do not survive a restart.
func NewTokenService(secret string) (*TokenService, error) {
	key := []byte(secret)
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		key = []byte(hex.EncodeToString(buf))
	}
	return &TokenService{secretKey: key, TTL: sessionTokenTTL}, nil
}

// Issue returns a signed token for sessionID and its expiry.
func (ts *TokenService) Issue(sessionID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ts.TTL)
	claims := &SessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   sessionID,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ts.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate returns the session id carried by a valid token.
func (ts *TokenService) Validate(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ts.secretKey, nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return "", errors.New("invalid token claims")
	}
	return claims.SessionID, nil
}

// SetCookie attaches a fresh token for sessionID to the response.
func (ts *TokenService) SetCookie(c echo.Context, sessionID string) (string, error) {
	token, expiresAt, err := ts.Issue(sessionID)
	if err != nil {
		return "", err
	}
	c.SetCookie(&http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

func tokenFromRequest(c echo.Context) string {
	if authHeader := c.Request().Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	if cookie, err := c.Cookie(sessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// RequireSession rejects requests whose token does not belong to the :id
// session in the path.
func RequireSession(ts *TokenService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenString := tokenFromRequest(c)
			if tokenString == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "session token required")
			}
			sessionID, err := ts.Validate(tokenString)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired session token")
			}
			if sessionID != c.Param("id") {
				return echo.NewHTTPError(http.StatusForbidden, "token does not match session")
			}
			return next(c)
		}
	}
}
