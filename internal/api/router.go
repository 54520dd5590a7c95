package api

import (
	"github.com/gin-gonic/gin"

	"pagerduty-analytics/internal/logging"
)

// NewRouter wires every route under the configured base path.
func NewRouter(basePath string, h *Handler, hub *Hub, logger *logging.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	api := router.Group(basePath)
	{
		api.GET("/health", h.Health)

		api.POST("/sync", h.StartSync)
		api.GET("/sync/status", h.SyncStatus)

		api.GET("/services", h.ListServices)
		api.GET("/services/count", h.CountServices)
		api.GET("/services/most-incidents", h.ServiceWithMostIncidents)
		api.GET("/services/:id", h.GetService)
		api.GET("/services/:id/incidents", h.ListServiceIncidents)

		api.GET("/incidents", h.ListIncidents)
		api.GET("/incidents/by-service", h.IncidentsByService)
		api.GET("/incidents/by-status", h.IncidentsByStatus)
		api.GET("/incidents/by-service-status", h.IncidentsByServiceStatus)

		api.GET("/teams", h.ListTeams)
		api.GET("/teams/count", h.CountTeams)

		api.GET("/escalation-policies", h.ListEscalationPolicies)
		api.GET("/escalation-policies/count", h.CountEscalationPolicies)

		api.GET("/users", h.ListUsers)
		api.GET("/users/count", h.CountUsers)
		api.GET("/users/inactive", h.InactiveUsers)
	}

	if hub != nil {
		router.GET("/ws/sync", hub.Serve)
	}

	return router
}
