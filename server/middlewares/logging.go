package middlewares

import (
	gin "github.com/gin-gonic/gin"
)

// LoggingMiddleware returns the request logging middleware. When
// disableHealthcheckLog is set, /health requests are served silently.
func LoggingMiddleware(disableHealthcheckLog bool) gin.HandlerFunc {
	logger := gin.Logger()

	if !disableHealthcheckLog {
		return logger
	}

	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}

		logger(c)
	}
}
