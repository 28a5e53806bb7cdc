// Package auth issues and verifies bearer tokens for the export API.
//
// Clients exchange an API key (checked against a bcrypt hash) for a short-lived
// HS256 JWT, then send it as "Authorization: Bearer <token>".
package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"neo-import-export/common"
)

const issuer = "neo-import-export"

// Claims are the JWT claims carried by API tokens
type Claims struct {
	jwt.RegisteredClaims
}

// HashAPIKey returns the bcrypt hash to store in auth.api_key_hash
func HashAPIKey(apiKey string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		return "", common.WrapError(err, common.ErrorTypeAuth, "hash api key")
	}
	return string(hash), nil
}

// CheckAPIKey compares apiKey against a bcrypt hash
func CheckAPIKey(hash, apiKey string) error {
	if hash == "" {
		return common.NewError(common.ErrorTypeAuth, "no api key configured")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(apiKey)); err != nil {
		return common.WrapError(err, common.ErrorTypeAuth, "invalid api key")
	}
	return nil
}

// IssueToken signs a token for subject valid for ttl
func IssueToken(secret []byte, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", common.WrapError(err, common.ErrorTypeAuth, "sign token")
	}
	return signed, nil
}

// ParseToken verifies a signed token and returns its claims
func ParseToken(secret []byte, token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, common.WrapError(err, common.ErrorTypeAuth, "invalid token")
	}
	return claims, nil
}

// Middleware rejects requests without a valid bearer token
func Middleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bearer token required"})
			return
		}
		claims, err := ParseToken(secret, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("subject", claims.Subject)
		c.Next()
	}
}

// TokenRequest is the body of POST /auth/token
type TokenRequest struct {
	APIKey  string `json:"api_key" binding:"required"`
	Subject string `json:"subject"`
}

// TokenHandler exchanges an API key for a bearer token
func TokenHandler(secret []byte, apiKeyHash string, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := CheckAPIKey(apiKeyHash, req.APIKey); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		subject := req.Subject
		if subject == "" {
			subject = "api"
		}
		token, err := IssueToken(secret, subject, ttl)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"token":      token,
			"token_type": "Bearer",
			"expires_in": int(ttl.Seconds()),
		})
	}
}
