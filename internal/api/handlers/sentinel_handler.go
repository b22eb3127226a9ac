package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/sentinel/internal/logger"
	"github.com/Wikid82/sentinel/internal/services"
	"github.com/Wikid82/sentinel/internal/util"
)

const (
	defaultEventLimit = 20
	defaultTopLimit   = 5
	defaultAuditLimit = 100
	maxListLimit      = 500
)

// SentinelHandler serves the Sentinel admin API.
type SentinelHandler struct {
	service *services.SentinelService
}

// NewSentinelHandler creates a new SentinelHandler.
func NewSentinelHandler(service *services.SentinelService) *SentinelHandler {
	return &SentinelHandler{service: service}
}

type ipRequest struct {
	IP string `json:"ip"`
}

func actionMeta(c *gin.Context) services.ActionMeta {
	return services.ActionMeta{Actor: "api:" + c.ClientIP(), Host: c.Request.Host}
}

func limitParam(c *gin.Context, fallback int) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 {
		return fallback
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}

// respondActionError maps a control-plane error to a response.
func respondActionError(c *gin.Context, err error) {
	if services.IsValidationError(err) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	logger.Log().WithError(err).WithField("path", util.SanitizeForLog(c.FullPath())).Error("sentinel: admin action failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
}

// Status handles GET /api/v1/sentinel/status
func (h *SentinelHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Status())
}

// Events handles GET /api/v1/sentinel/events
func (h *SentinelHandler) Events(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"events": h.service.RecentEvents(limitParam(c, defaultEventLimit))})
}

// TopIPs handles GET /api/v1/sentinel/top-ips
func (h *SentinelHandler) TopIPs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": h.service.TopIPs(limitParam(c, defaultTopLimit))})
}

// TopCategories handles GET /api/v1/sentinel/top-categories
func (h *SentinelHandler) TopCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": h.service.TopCategories(limitParam(c, defaultTopLimit))})
}

// ListBlocked handles GET /api/v1/sentinel/blocked
func (h *SentinelHandler) ListBlocked(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ips": h.service.BlockedIPs()})
}

// ListAllowed handles GET /api/v1/sentinel/allowed
func (h *SentinelHandler) ListAllowed(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ips": h.service.AllowedIPs()})
}

// Block handles POST /api/v1/sentinel/blocked
func (h *SentinelHandler) Block(c *gin.Context) {
	var req ipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing IP."})
		return
	}
	added, err := h.service.BlockIP(req.IP, actionMeta(c))
	if err != nil {
		respondActionError(c, err)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"ip": req.IP, "blocked": true, "changed": added})
}

// Unblock handles DELETE /api/v1/sentinel/blocked/:ip
func (h *SentinelHandler) Unblock(c *gin.Context) {
	removed, err := h.service.UnblockIP(c.Param("ip"), actionMeta(c))
	if err != nil {
		respondActionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ip": c.Param("ip"), "blocked": false, "changed": removed})
}

// Allow handles POST /api/v1/sentinel/allowed
func (h *SentinelHandler) Allow(c *gin.Context) {
	var req ipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing IP."})
		return
	}
	added, err := h.service.AllowIP(req.IP, actionMeta(c))
	if err != nil {
		respondActionError(c, err)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"ip": req.IP, "allowed": true, "changed": added})
}

// Unallow handles DELETE /api/v1/sentinel/allowed/:ip
func (h *SentinelHandler) Unallow(c *gin.Context) {
	removed, err := h.service.UnallowIP(c.Param("ip"), actionMeta(c))
	if err != nil {
		respondActionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ip": c.Param("ip"), "allowed": false, "changed": removed})
}

// Resync handles POST /api/v1/sentinel/resync
func (h *SentinelHandler) Resync(c *gin.Context) {
	ts, err := h.service.ForceResync(actionMeta(c))
	if err != nil {
		respondActionError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"last_manual_resync": ts})
}

// Audit handles GET /api/v1/sentinel/audit
func (h *SentinelHandler) Audit(c *gin.Context) {
	entries, err := h.service.ListAudit(limitParam(c, defaultAuditLimit))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list audit entries"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"audit": entries})
}

// Decisions handles GET /api/v1/sentinel/decisions
func (h *SentinelHandler) Decisions(c *gin.Context) {
	decisions, err := h.service.ListDecisions(limitParam(c, defaultAuditLimit))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list decisions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": decisions})
}

// RegisterRoutes mounts the admin API on group.
func (h *SentinelHandler) RegisterRoutes(group *gin.RouterGroup) {
	g := group.Group("/sentinel")
	g.GET("/status", h.Status)
	g.GET("/events", h.Events)
	g.GET("/top-ips", h.TopIPs)
	g.GET("/top-categories", h.TopCategories)
	g.GET("/blocked", h.ListBlocked)
	g.POST("/blocked", h.Block)
	g.DELETE("/blocked/:ip", h.Unblock)
	g.GET("/allowed", h.ListAllowed)
	g.POST("/allowed", h.Allow)
	g.DELETE("/allowed/:ip", h.Unallow)
	g.POST("/resync", h.Resync)
	g.GET("/audit", h.Audit)
	g.GET("/decisions", h.Decisions)
}
