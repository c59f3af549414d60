package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/thereayou/ligabpi/internal/league"
	"github.com/thereayou/ligabpi/pkg/auth"
)

const (
	UserKey  = "user"
	TokenKey = "token"
)

// AuthMiddleware проверяет JWT из заголовка Authorization
func AuthMiddleware(jwtManager *auth.JWTManager, blacklist TokenBlacklist) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractTokenFromHeader(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		authenticate(c, jwtManager, blacklist, token)
	}
}

// WSAuthMiddleware специальный middleware для WebSocket: браузер не умеет
// ставить заголовки при апгрейде, поэтому токен можно передать в query.
func WSAuthMiddleware(jwtManager *auth.JWTManager, blacklist TokenBlacklist) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			authHeader := c.GetHeader("Authorization")
			if authHeader != "" {
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
					token = parts[1]
				}
			}
		}

		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		authenticate(c, jwtManager, blacklist, token)
	}
}

func authenticate(c *gin.Context, jwtManager *auth.JWTManager, blacklist TokenBlacklist, token string) {
	// Проверяем, не в черном списке ли токен
	revoked, err := blacklist.Revoked(c.Request.Context(), token)
	if err != nil || revoked {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token is blacklisted"})
		return
	}

	claims, err := jwtManager.Verify(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	c.Set(UserKey, league.User{ID: claims.Subject, Name: claims.Name, Email: claims.Email})
	c.Set(TokenKey, token)
	c.Next()
}

// CurrentUser достаёт пользователя, положенного AuthMiddleware
func CurrentUser(c *gin.Context) (league.User, bool) {
	v, ok := c.Get(UserKey)
	if !ok {
		return league.User{}, false
	}
	user, ok := v.(league.User)
	return user, ok
}

// OptionalAuth кладёт пользователя в контекст, если токен есть и валиден,
// но не отклоняет анонимные запросы.
func OptionalAuth(jwtManager *auth.JWTManager, blacklist TokenBlacklist) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractTokenFromHeader(c.Request)
		if err != nil {
			c.Next()
			return
		}
		authenticate(c, jwtManager, blacklist, token)
	}
}
