package middleware

import (
	"net/http"
	"strings"
	"time"

	"boxoffice/internal/shared/config"
	"boxoffice/internal/shared/utils/response"
	"boxoffice/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-ID"

	ContextUserID    = "user_id"
	ContextUserEmail = "user_email"
	ContextUserRole  = "user_role"
	ContextRequestID = "request_id"
)

// JWTAuth creates a JWT authentication middleware
func JWTAuth() gin.HandlerFunc {
	return JWTAuthWithConfig(config.Load())
}

// JWTAuthWithConfig creates a JWT authentication middleware with config
func JWTAuthWithConfig(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "Authorization header is required", nil, nil)
			c.Abort()
			return
		}

		tokenString, ok := bearerToken(authHeader)
		if !ok {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "authorization header format must be Bearer {token}", nil, nil)
			c.Abort()
			return
		}

		claims, err := parseAccessToken(tokenString, cfg.JWT.Secret)
		if err != nil {
			response.RespondJSON(c, "error", http.StatusUnauthorized, err.Error(), nil, nil)
			c.Abort()
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

// RequireRoles middleware checks if user has any of the required roles
func RequireRoles(requiredRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, exists := c.Get(ContextUserRole)
		if !exists {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "user role not found in context", nil, nil)
			c.Abort()
			return
		}

		role, _ := userRole.(string)
		for _, required := range requiredRoles {
			if role == required {
				c.Next()
				return
			}
		}

		response.RespondJSON(c, "error", http.StatusForbidden, "Insufficient permissions", nil, nil)
		c.Abort()
	}
}

// RequestID tags every request with an id, reusing the caller's when sent.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ContextRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// RequestLogger writes one structured line per request.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	log = logger.OrDefault(log).WithComponent("http")

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		l := log
		if id := c.GetString(ContextRequestID); id != "" {
			l = l.WithRequestID(id)
		}
		if userID := c.GetString(ContextUserID); userID != "" {
			l = l.WithUserID(userID)
		}
		if len(c.Errors) > 0 && c.Writer.Status() >= http.StatusInternalServerError {
			l.LogHTTPError(c, c.Errors.Last().Err, c.Writer.Status())
			return
		}
		l.LogHTTPRequest(c, time.Since(start))
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

type tokenError string

func (e tokenError) Error() string { return string(e) }

func parseAccessToken(tokenString, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, tokenError("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, tokenError("invalid or expired token")
	}
	if tokenType, ok := claims["type"]; !ok || tokenType != "access" {
		return nil, tokenError("invalid token type")
	}
	return claims, nil
}

func setClaims(c *gin.Context, claims jwt.MapClaims) {
	c.Set(ContextUserID, claims["user_id"])
	c.Set(ContextUserEmail, claims["email"])
	c.Set(ContextUserRole, claims["role"])
}
