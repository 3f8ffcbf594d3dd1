package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dsetyadi/chatagent/internal/middleware"
)

type RouterDeps struct {
	Documents  *DocumentHandler
	Chat       *ChatHandler
	ChatWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api.POST("/documents", deps.Documents.Upload)
	api.GET("/documents", deps.Documents.List)
	api.GET("/documents/:id", deps.Documents.Get)
	api.PUT("/documents/:id", deps.Documents.Reupload)
	api.GET("/documents/:id/chunks", deps.Documents.Chunks)
	api.GET("/documents/:id/download", deps.Documents.Download)
	api.DELETE("/documents/:id", deps.Documents.Delete)

	chatGroup := api.Group("")
	chatGroup.Use(middleware.RateLimit(deps.ChatWindow))
	chatGroup.POST("/chat", deps.Chat.Chat)
	chatGroup.POST("/search", deps.Chat.Search)
}
