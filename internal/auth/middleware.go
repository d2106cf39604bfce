package auth

import (
	"github.com/gin-gonic/gin"
	"github.com/lucci-xyz/bounty-sub003/internal/apperr"
	"github.com/lucci-xyz/bounty-sub003/internal/session"
)

// SessionRequired 未登录的请求直接返回 401
func SessionRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := RequireSession(session.From(c)); err != nil {
			abort(c, err)
			return
		}
		c.Next()
	}
}

// AdminRequired 非管理员返回 401/403
func AdminRequired(a *Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := a.RequireAdmin(session.From(c)); err != nil {
			abort(c, err)
			return
		}
		c.Next()
	}
}

func abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(apperr.HTTPStatus(apperr.KindOf(err)), gin.H{
		"success": false,
		"message": apperr.PublicMessage(err),
		"data":    nil,
	})
}
