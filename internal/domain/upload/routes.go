package upload

import "github.com/gin-gonic/gin"

func RegisterRoutes(r *gin.RouterGroup, h *Handler) {
	uploads := r.Group("/uploads")
	{
		uploads.POST("", h.Create)
		uploads.GET("", h.List)
		uploads.GET("/:id", h.Get)
		uploads.DELETE("/:id", h.Delete)
		uploads.POST("/:id/thumbnail", h.Thumbnail)
	}
	r.GET("/resolve", h.Resolve)
}
