package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/thereayou/roomcoord/pkg/auth"
)

// UsernameKey ключ контекста с username из subject токена
const UsernameKey = "username"

// AuthMiddleware проверяет JWT токен из Authorization header
func AuthMiddleware(jwtManager *auth.JWTManager, redisClient *redis.Client) gin.HandlerFunc {
	return authenticate(auth.BearerToken, jwtManager, redisClient)
}

// WSAuthMiddleware принимает токен и из query, браузер не передает заголовок при upgrade
func WSAuthMiddleware(jwtManager *auth.JWTManager, redisClient *redis.Client) gin.HandlerFunc {
	return authenticate(auth.QueryOrBearerToken, jwtManager, redisClient)
}

func authenticate(extract func(*http.Request) (string, error), jwtManager *auth.JWTManager, redisClient *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := extract(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}

		// Проверяем черный список; недоступный redis тоже означает отказ
		exists, err := redisClient.Exists(c.Request.Context(), "blacklist:"+token).Result()
		if err != nil || exists > 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token is blacklisted"})
			return
		}

		username, err := jwtManager.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(UsernameKey, username)
		c.Next()
	}
}
