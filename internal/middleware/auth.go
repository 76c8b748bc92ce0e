package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/huangang/campusgig/internal/models"
	"github.com/huangang/campusgig/internal/utils"
	"github.com/huangang/campusgig/pkg/response"
)

const (
	ContextUserID   = "user_id"
	ContextUsername = "username"
	ContextRole     = "role"
)

// AuthRequired resolves the actor from a bearer token. Tokens are issued by
// the platform's identity service; only verification happens here.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Abort(c, response.NewUnauthorized("authorization header required"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			response.Abort(c, response.NewUnauthorized("invalid authorization header format"))
			return
		}

		claims, err := utils.ParseToken(parts[1])
		if err != nil {
			response.Abort(c, response.NewUnauthorized("invalid or expired token"))
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUsername, claims.Username)
		c.Set(ContextRole, claims.Role)

		c.Next()
	}
}

// AdminRequired must run after AuthRequired.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetRole(c) != models.RoleAdmin {
			response.Abort(c, response.NewForbidden("admin access required"))
			return
		}
		c.Next()
	}
}

// GetUserID returns the authenticated user id, or 0.
func GetUserID(c *gin.Context) uint {
	if id, ok := c.Get(ContextUserID); ok {
		if uid, ok := id.(uint); ok {
			return uid
		}
	}
	return 0
}

func GetUsername(c *gin.Context) string {
	return c.GetString(ContextUsername)
}

func GetRole(c *gin.Context) string {
	return c.GetString(ContextRole)
}
