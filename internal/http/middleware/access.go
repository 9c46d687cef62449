// README: Access-code middleware scopes unauthenticated client requests to one ride.
package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"transfer/internal/modules/ride"
	"transfer/internal/types"
)

const (
	HeaderAccessCode = "X-Access-Code"
	HeaderPhone      = "X-Phone"

	ctxRideID = "scoped_ride_id"
)

type AccessResolver interface {
	ResolveAccess(ctx context.Context, code, phone string) (types.ID, error)
}

// AccessCode resolves the (code, phone) pair on every request; nothing is
// cached so a cancelled or reissued booking takes effect immediately.
// Browsers cannot set headers on websocket upgrades, so the query
// parameters access_code and phone are accepted as well.
func AccessCode(resolver AccessResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := c.GetHeader(HeaderAccessCode)
		if code == "" {
			code = c.Query("access_code")
		}
		phone := c.GetHeader(HeaderPhone)
		if phone == "" {
			phone = c.Query("phone")
		}
		if code == "" || phone == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "access code and phone required"})
			return
		}
		rideID, err := resolver.ResolveAccess(c.Request.Context(), code, phone)
		if errors.Is(err, ride.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "ride not found"})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.Set(ctxRideID, rideID)
		c.Next()
	}
}

// ScopedRideID returns the ride unlocked by AccessCode.
func ScopedRideID(c *gin.Context) types.ID {
	v, _ := c.Get(ctxRideID)
	id, _ := v.(types.ID)
	return id
}
