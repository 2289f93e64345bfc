package middlewares

import (
	"context"
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/expenses_backend/utils"
	"github.com/gin-gonic/gin"
)

type authString string

// InternalAuthMiddleware guards the internal ops endpoints. Callers present
// either a service JWT (Authorization: Bearer) or an interactive admin
// session; the JWT path lets schedulers and sibling services call without a
// redis session.
func InternalAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")
		if auth != "" {
			bearer := "Bearer "
			if !strings.HasPrefix(auth, bearer) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				c.Abort()
				return
			}
			auth = auth[len(bearer):]

			validate, err := utils.JwtValidate(auth)
			if err != nil || !validate.Valid {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				c.Abort()
				return
			}

			customClaim, _ := validate.Claims.(*utils.JwtCustomClaim)

			ctx := context.WithValue(c.Request.Context(), authString("auth"), customClaim)
			c.Request = c.Request.WithContext(ctx)
			c.Next()
			return
		}

		// No bearer token; fall back to an admin session.
		user := CurrentUser(c)
		if user == nil || user.IsAdmin == nil || !*user.IsAdmin {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CtxValue returns the JWT claim of a service call, or nil for session calls.
func CtxValue(ctx context.Context) *utils.JwtCustomClaim {
	raw, _ := ctx.Value(authString("auth")).(*utils.JwtCustomClaim)
	return raw
}
