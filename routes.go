package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"climatedash/api/handlers"
)

type routeDeps struct {
	tracking *handlers.TrackingHandlers
	auth     *handlers.AuthHandlers
	authMW   gin.HandlerFunc
	health   gin.HandlerFunc
	metrics  http.Handler
}

func registerRoutes(r *gin.Engine, d routeDeps) {
	r.GET("/health", d.health)
	r.GET("/metrics", gin.WrapH(d.metrics))

	api := r.Group("/api")
	{
		operators := api.Group("/operators")
		{
			operators.POST("/signup", d.auth.Signup)
			operators.POST("/login", d.auth.Login)
			operators.POST("/logout", d.auth.Logout)
		}

		tracking := api.Group("/tracking")
		{
			tracking.POST("/start-session", d.tracking.StartSession)
			tracking.POST("/end-session", d.tracking.EndSession)
			tracking.POST("/page-view", d.tracking.RecordPageView)
			tracking.POST("/interaction", d.tracking.RecordInteraction)
			tracking.POST("/metric", d.tracking.RecordMetric)

			reports := tracking.Group("/")
			reports.Use(d.authMW)
			{
				reports.GET("/metrics", d.tracking.GetAggregateMetrics)
				reports.GET("/sessions/:id", d.tracking.GetSessionDetail)
			}
		}
	}
}
