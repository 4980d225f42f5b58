package main

import (
	"github.com/gin-gonic/gin"
)

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func newRouter(h *handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), cors())

	r.GET("/backends", h.handleGetBackends)
	r.POST("/maintenance/purge", h.handlePurge)

	attempts := r.Group("/attempts")
	attempts.POST("", h.handlePostAttempt)
	attempts.GET("", h.handleGetAttempts)
	attempts.GET("/:id", h.handleGetAttempt)
	attempts.GET("/:id/placements", h.handleGetPlacements)
	attempts.GET("/:id/artifacts/:format", h.handleGetArtifact)
	attempts.POST("/:id/solution", h.handlePostSolution)
	attempts.POST("/:id/revert", h.handlePostRevert)
	attempts.DELETE("/:id/enumeration", h.handleDeleteEnumeration)
	return r
}
