package middleware

import (
	"context"
	"errors"
	"log"

	"safimatch/utils"

	"github.com/gin-gonic/gin"
)

// ErrorHandlerMiddleware 捕获 panic 和 c.Errors，上游超时返回 504
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[ERROR] Panic recovered: %v", err)
				if !c.Writer.Written() {
					utils.InternalServerError(c, "internal server error")
				}
				c.Abort()
			}
		}()

		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last()
		log.Printf("[ERROR] Request error %s %s: %v", c.Request.Method, c.Request.URL.Path, err.Err)

		if c.Writer.Written() {
			return
		}
		if errors.Is(err.Err, context.DeadlineExceeded) {
			utils.GatewayTimeout(c, "A conexão demorou muito. Tente novamente.")
			return
		}
		utils.InternalServerError(c, err.Error())
	}
}
