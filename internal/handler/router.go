package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler, mode string, logger *zap.Logger) *gin.Engine {
	gin.SetMode(mode)

	r := gin.New()

	r.Use(RecoveryMiddleware(logger))
	r.Use(LoggerMiddleware(logger.Named("access")))
	r.Use(CORSMiddleware())

	api := r.Group("/api/v1")
	{
		api.POST("/purchases", h.Purchase)

		courses := api.Group("/courses/:id")
		{
			courses.GET("/access", h.CheckAccess)
			courses.GET("/reviews", h.ListReviews)
			courses.POST("/reviews", h.SubmitReview)
		}

		users := api.Group("/users/:id")
		{
			users.GET("/courses", h.ListUserCourses)
			users.GET("/balance", h.GetBalance)
			users.GET("/entries", h.ListEntries)
			users.GET("/topups", h.ListTopUps)
		}

		topUps := api.Group("/topups")
		{
			topUps.POST("", h.CreateTopUp)
			topUps.GET("/:external_id/check", h.CheckTopUp)
		}

		reviews := api.Group("/reviews")
		{
			reviews.PUT("/:id", h.UpdateReview)
			reviews.DELETE("/:id", h.DeleteReview)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
