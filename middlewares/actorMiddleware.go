package middlewares

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/stock_ledger/utils"
)

const (
	HeaderUserId   = "x-user-id"
	HeaderUserName = "x-user-name"
)

// ActorMiddleware records the acting user for audit history. Sessions are
// resolved by the gateway in front of this service, which forwards the user
// in headers. Requests without them act as the System user.
func ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if raw := strings.TrimSpace(c.GetHeader(HeaderUserId)); raw != "" {
			userId, err := strconv.Atoi(raw)
			if err != nil || userId < 0 {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + HeaderUserId})
				return
			}
			ctx = utils.SetUserIdInContext(ctx, userId)
		}
		if name := strings.TrimSpace(c.GetHeader(HeaderUserName)); name != "" {
			ctx = utils.SetUserNameInContext(ctx, name)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CorrelationMiddleware generates one correlation id per request and attaches it to the context.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Header("x-correlation-id", cid)
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	}
}
