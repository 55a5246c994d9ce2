package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/examsync/exam-bridge-api/internal/models"
	"github.com/examsync/exam-bridge-api/pkg/config"
	appErrors "github.com/examsync/exam-bridge-api/pkg/errors"
	"github.com/examsync/exam-bridge-api/pkg/response"
)

// ContextActorKey is the gin context key storing the decoded actor claims.
const ContextActorKey = "currentActor"

// Actor requires a valid gateway-issued bearer token and stores the decoded
// claims on the context. The gateway authenticates; this service only needs
// the identity for the audit ledger.
func Actor(cfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := parseBearer(c.GetHeader("Authorization"), cfg.Secret)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Set(ContextActorKey, claims)
		c.Next()
	}
}

// OptionalActor attaches claims when a valid token is present but never
// blocks the request.
func OptionalActor(cfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, err := parseBearer(c.GetHeader("Authorization"), cfg.Secret); err == nil {
			c.Set(ContextActorKey, claims)
		}
		c.Next()
	}
}

func parseBearer(header, secret string) (*models.ActorClaims, error) {
	if header == "" {
		return nil, appErrors.ErrUnauthorized
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header")
	}

	claims := &models.ActorClaims{}
	token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token")
	}
	return claims, nil
}
