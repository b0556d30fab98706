package server

import (
	"crypto/subtle"
	"errors"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/milkbill/internal/authorization"
	obscontext "github.com/smallbiznis/milkbill/internal/observability/context"
	"github.com/smallbiznis/milkbill/internal/observability/logger"
	ownerdomain "github.com/smallbiznis/milkbill/internal/owner/domain"
	"go.uber.org/zap"
)

// HeaderUserID carries the owner id set by the trusted auth proxy in front of the API.
const HeaderUserID = "X-User-Id"

// CallerRequired resolves the caller from HeaderUserID against the owner directory.
func (s *Server) CallerRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		id, err := snowflake.ParseString(raw)
		if err != nil || id <= 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := c.Request.Context()
		owner, err := s.ownerSvc.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ownerdomain.ErrNotFound) {
				AbortWithError(c, ErrUnauthorized)
				return
			}
			AbortWithError(c, err)
			return
		}
		role, err := authorization.ParseRole(owner.Role)
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		caller := authorization.Caller{ID: owner.ID, Role: role}
		ctx = authorization.WithCaller(ctx, caller)
		ctx = obscontext.WithActor(ctx, owner.ID.String(), string(role))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) authorize(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := authorization.CallerFromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), caller, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// CronAuthRequired accepts "Authorization: Bearer <CRON_SECRET>". An unset
// secret disables the cron routes.
func (s *Server) CronAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := strings.TrimSpace(s.cfg.CronSecret)
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		token, found := strings.CutPrefix(header, "Bearer ")
		if secret == "" || !found || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(secret)) != 1 {
			logger.FromContext(c.Request.Context()).Warn("cron request rejected", zap.String("path", c.FullPath()))
			AbortWithError(c, ErrUnauthorized)
			return
		}
		ctx := authorization.WithCaller(c.Request.Context(), authorization.SystemCaller)
		ctx = obscontext.WithActor(ctx, "system", "cron")
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// VerifyRateLimit throttles payment verification per caller.
func (s *Server) VerifyRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.verifyLimiter.Enabled() {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		caller, _ := authorization.CallerFromContext(ctx)

		result, err := s.verifyLimiter.Allow(ctx, caller.ID.String())
		if err != nil {
			// Fail open.
			logger.FromContext(ctx).Warn("verify rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if !result.Allowed {
			logger.FromContext(ctx).Warn("verify rate limit exceeded", zap.String("caller_id", caller.ID.String()))
			retryAfter := int(result.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func callerFrom(c *gin.Context) authorization.Caller {
	caller, _ := authorization.CallerFromContext(c.Request.Context())
	return caller
}
