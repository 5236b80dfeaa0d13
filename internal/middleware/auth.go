package middleware

import (
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/sellerchat/internal/config"
	"github.com/mbeoliero/sellerchat/pkg/errcode"
	"github.com/mbeoliero/sellerchat/pkg/jwt"
	"github.com/mbeoliero/sellerchat/pkg/response"
)

const (
	// AuthorizationHeader is the header key for authorization
	AuthorizationHeader = "Authorization"
	// BearerPrefix is the prefix for bearer token
	BearerPrefix = "Bearer "
	// UserIdKey is the context key for user Id
	UserIdKey = "user_id"
	// PlatformIdKey is the context key for platform Id
	PlatformIdKey = "platform_id"
	// RolesKey is the context key for the actor's roles
	RolesKey = "roles"
)

// JWTAuth resolves the current actor from the bearer token
func JWTAuth(cfg *config.Config) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		authHeader := string(c.GetHeader(AuthorizationHeader))
		if authHeader == "" {
			response.ErrorWithCode(ctx, c, errcode.ErrTokenMissing)
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, BearerPrefix) {
			response.ErrorWithCode(ctx, c, errcode.ErrTokenInvalid)
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, BearerPrefix)
		claims, err := ParseTokenWithFallback(tokenString, cfg)
		if err != nil {
			log.CtxDebug(ctx, "token rejected: path=%s, error=%v", c.Path(), err)
			response.Error(ctx, c, err)
			c.Abort()
			return
		}

		// Store user info in context
		c.Set(UserIdKey, claims.UserId)
		c.Set(PlatformIdKey, claims.PlatformId)
		c.Set(RolesKey, claims.Roles)

		c.Next(ctx)
	}
}

// RequireRoles lets the request through only when the actor holds one of
// allowed
func RequireRoles(allowed []string) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		claims := jwt.Claims{Roles: GetRoles(c)}
		if !claims.HasAnyRole(allowed...) {
			log.CtxInfo(ctx, "role check failed: user_id=%s, roles=%v, path=%s", GetUserId(c), claims.Roles, c.Path())
			response.ErrorWithCode(ctx, c, errcode.ErrNoPermission)
			c.Abort()
			return
		}
		c.Next(ctx)
	}
}

// ParseTokenWithFallback tries an internal token first, then falls back to an
// external dashboard token if enabled.
func ParseTokenWithFallback(tokenString string, cfg *config.Config) (*jwt.Claims, error) {
	claims, err := jwt.ParseToken(tokenString, cfg.JWT.Secret)
	if err == nil {
		return claims, nil
	}

	if cfg.ExternalJWT.Enabled {
		return jwt.ParseExternalToken(
			tokenString,
			cfg.ExternalJWT.Secret,
			cfg.ExternalJWT.DefaultRole,
			cfg.ExternalJWT.DefaultPlatformId,
		)
	}

	return nil, err
}

// GetUserId gets user Id from context
func GetUserId(c *app.RequestContext) string {
	if v, ok := c.Get(UserIdKey); ok {
		return v.(string)
	}
	return ""
}

// GetPlatformId gets platform Id from context
func GetPlatformId(c *app.RequestContext) int {
	if v, ok := c.Get(PlatformIdKey); ok {
		return v.(int)
	}
	return 0
}

// GetRoles gets the actor's roles from context
func GetRoles(c *app.RequestContext) []string {
	if v, ok := c.Get(RolesKey); ok {
		roles, _ := v.([]string)
		return roles
	}
	return nil
}
