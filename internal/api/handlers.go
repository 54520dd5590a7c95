package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pagerduty-analytics/internal/analytics"
	"pagerduty-analytics/internal/db"
	"pagerduty-analytics/internal/logging"
	"pagerduty-analytics/internal/pagerduty"
	syncsvc "pagerduty-analytics/internal/sync"
)

// Handler holds the services the HTTP endpoints delegate to.
type Handler struct {
	sync      *syncsvc.Service
	analytics *analytics.Service
	db        *db.DB
	client    *pagerduty.Client
	logger    *logging.Logger
}

func NewHandler(syncService *syncsvc.Service, analyticsService *analytics.Service, database *db.DB, client *pagerduty.Client, logger *logging.Logger) *Handler {
	return &Handler{sync: syncService, analytics: analyticsService, db: database, client: client, logger: logger}
}

// Health probes the database and the upstream API. Either failing degrades
// the response to 503 with per-dependency detail.
func (h *Handler) Health(c *gin.Context) {
	ctx := c.Request.Context()
	status := http.StatusOK
	deps := gin.H{"database": "ok", "pagerduty": "ok"}

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Errorf("Health check: database unreachable: %v", err)
		deps["database"] = "unreachable"
		status = http.StatusServiceUnavailable
	}
	if err := h.client.Ping(ctx); err != nil {
		h.logger.Errorf("Health check: pagerduty unreachable: %v", err)
		deps["pagerduty"] = "unreachable"
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{"status": http.StatusText(status), "dependencies": deps})
}

// StartSync kicks off a background sync run. A second request while a run is
// active gets 409 with the conflict reason.
func (h *Handler) StartSync(c *gin.Context) {
	run, err := h.sync.StartRun()
	if err != nil {
		if errors.Is(err, syncsvc.ErrSyncInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.fail(c, "failed to start sync", err)
		return
	}
	c.JSON(http.StatusAccepted, run)
}

func (h *Handler) SyncStatus(c *gin.Context) {
	run, ok := h.sync.Status()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no sync run recorded"})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *Handler) CountServices(c *gin.Context) {
	n, err := h.analytics.CountServices(c.Request.Context())
	if err != nil {
		h.fail(c, "failed to count services", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (h *Handler) ListServices(c *gin.Context) {
	services, err := h.analytics.ListServices(c.Request.Context())
	if err != nil {
		h.fail(c, "failed to list services", err)
		return
	}
	c.JSON(http.StatusOK, services)
}

func (h *Handler) GetService(c *gin.Context) {
	detail, err := h.analytics.GetServiceDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "failed to get service", err)
		return
	}
	if detail == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "service not found"})
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) ListServiceIncidents(c *gin.Context) {
	incidents, err := h.analytics.ListServiceIncidents(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "failed to list service incidents", err)
		return
	}
	c.JSON(http.StatusOK, incidents)
}

func (h *Handler) ServiceWithMostIncidents(c *gin.Context) {
	top, err := h.analytics.ServiceWithMostIncidents(c.Request.Context())
	if err != nil {
		h.fail(c, "failed to find service with most incidents", err)
		return
	}
	if top == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no incidents recorded"})
		return
	}
	c.JSON(http.StatusOK, top)
}

func (h *Handler) ListIncidents(c *gin.Context) {
	incidents, err := h.analytics.ListIncidents(c.Request.Context())
	if err != nil {
		h.fail(c, "failed to list incidents", err)
		return
	}
	c.JSON(http.StatusOK, incidents)
}

func (h *Handler) IncidentsByService(c *gin.Context) {
	grouped, err := h.analytics.ListIncidentsByService(c.Request.Context())
	if err != nil {
		h.fail(c, "failed to group incidents by service", err)
		return
	}
	c.JSON(http.StatusOK, grouped)
}

func (h *Handler) IncidentsByStatus(c *gin.Context) {
	counts, err := h.analytics.IncidentCountsByStatus(c.Request.Context())
	if err != nil {
		h.fail(c, "failed to count incidents by status", err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

func (h *Handler) IncidentsByServiceStatus(c *gin.Context) {
	counts, err := h.analytics.IncidentCountsByServiceStatus(c.Request.Context())
	if err != nil {
		h.fail(c, "failed to count incidents by service and status", err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

func (h *Handler) CountTeams(c *gin.Context) {
	n, err := h.analytics.CountTeams(c.Request.Context())
	if err != nil {
		h.fail(c, "failed to count teams", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (h *Handler) ListTeams(c *gin.Context) {
	teams, err := h.analytics.ListTeams(c.Request.Context())
	if err != nil {
		h.fail(c, "failed to list teams", err)
		return
	}
	c.JSON(http.StatusOK, teams)
}

func (h *Handler) CountEscalationPolicies(c *gin.Context) {
	n, err := h.analytics.CountEscalationPolicies(c.Request.Context())
	if err != nil {
		h.fail(c, "failed to count escalation policies", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (h *Handler) ListEscalationPolicies(c *gin.Context) {
	policies, err := h.analytics.ListEscalationPolicies(c.Request.Context())
	if err != nil {
		h.fail(c, "failed to list escalation policies", err)
		return
	}
	c.JSON(http.StatusOK, policies)
}

func (h *Handler) CountUsers(c *gin.Context) {
	n, err := h.analytics.CountUsers(c.Request.Context())
	if err != nil {
		h.fail(c, "failed to count users", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.analytics.ListUsers(c.Request.Context())
	if err != nil {
		h.fail(c, "failed to list users", err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) InactiveUsers(c *gin.Context) {
	users, err := h.analytics.InactiveUsers(c.Request.Context())
	if err != nil {
		h.fail(c, "failed to list inactive users", err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) fail(c *gin.Context, msg string, err error) {
	h.logger.Errorf("%s: %v", msg, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
