package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/examsync/exam-bridge-api/internal/middleware"
	"github.com/examsync/exam-bridge-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.ActorClaims {
	value, exists := c.Get(middleware.ContextActorKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.ActorClaims)
	if !ok {
		return nil
	}
	return claims
}

// actorFromContext resolves who performs the request for the audit ledger.
// Routes reached without claims (test contexts, optional-auth paths) are
// attributed to an anonymous staff actor rather than rejected here: the
// middleware decides access, the ledger only records identity.
func actorFromContext(c *gin.Context) models.Actor {
	if claims := claimsFromContext(c); claims != nil {
		return claims.ToActor(c.ClientIP())
	}
	return models.Actor{
		Type:     models.ActorStaff,
		ID:       "anonymous",
		Username: "anonymous",
		IP:       c.ClientIP(),
	}
}
