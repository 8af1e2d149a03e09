// Package server provides the OpenScale Gin-based REST API.
// Routes are split into two groups:
//   - Control-plane (port 7600): JWT-protected; operator status and scaling API.
//   - Data-plane   (port 7601): Bearer-token-protected; receives agent reports.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kelvas/openscale/internal/scaler"
)

// adminCredentials are set at startup from config.
var adminUser, adminPass string

// SetAdminCredentials stores credentials for /api/login.
func SetAdminCredentials(user, pass string) {
	adminUser = user
	adminPass = pass
}

// RegisterControlRoutes wires up the control-plane API on the given engine.
// Call this on the engine bound to port 7600.
//
//	Public:   POST /api/login, GET /api/health
//	Protected (JWT): all other /api/* routes
func RegisterControlRoutes(r *gin.Engine) {
	api := r.Group("/api")

	// ── Public endpoints ──────────────────────────────────────────────────────
	api.POST("/login", handleLogin)

	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})

	// ── JWT-protected endpoints ───────────────────────────────────────────────
	auth := api.Group("/", JWTMiddleware())
	{
		auth.GET("/status", handleStatus)
		auth.GET("/decision", handleDecision)
		auth.POST("/scale", handleScale)
		auth.GET("/events", handleEvents)
		auth.GET("/samples", handleSamples)
	}
}

// RegisterDataRoutes wires up the data-plane API on the given engine.
// Call this on the engine bound to port 7601.
// All routes require a valid Bearer agent token.
func RegisterDataRoutes(r *gin.Engine) {
	api := r.Group("/api", AgentTokenMiddleware())
	{
		api.POST("/metrics", handleMetricsIngest)
	}

	// Data-plane health (no auth — used by load-balancers / k8s probes)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// ── Handlers ──────────────────────────────────────────────────────────────────

// handleLogin accepts username + password and returns a signed JWT.
//
//	POST /api/login
//	Body: { "username": "admin", "password": "admin" }
func handleLogin(c *gin.Context) {
	var body struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	if body.Username != adminUser || body.Password != adminPass {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := GenerateJWT(body.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": 86400, // seconds
		"type":       "Bearer",
	})
}

// handleStatus returns the scaler state snapshot.
func handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": core.Status()})
}

// handleDecision returns a dry-run decision without applying it.
func handleDecision(c *gin.Context) {
	action, confidence := core.ShouldScale()
	avg, samples := core.Averages()
	c.JSON(http.StatusOK, gin.H{
		"action":     action,
		"confidence": confidence,
		"averages":   avg,
		"samples":    samples,
	})
}

// handleScale evaluates and applies a scaling decision now, outside the
// periodic loop. Low-confidence skips return 200 with applied=false.
func handleScale(c *gin.Context) {
	res := EvaluateOnce(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"data": res})
}

// handleEvents returns recent applied scale events.
func handleEvents(c *gin.Context) {
	limit := parseLimit(c, 50)
	events, err := RecentEvents(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": events})
}

// handleSamples returns recent persisted metric samples.
func handleSamples(c *gin.Context) {
	limit := parseLimit(c, 100)
	samples, err := RecentSamples(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": samples})
}

func parseLimit(c *gin.Context, def int) int {
	raw := c.Query("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > 1000 {
		return def
	}
	return n
}

// handleMetricsIngest accepts a metrics report from an agent (data-plane
// only) and feeds it into the decision window. The sample is timestamped on
// arrival so agent clock skew cannot distort window pruning.
func handleMetricsIngest(c *gin.Context) {
	var payload struct {
		Hostname          string  `json:"hostname"`
		CPUUsage          float64 `json:"cpu_usage"`
		MemoryUsage       float64 `json:"memory_usage"`
		DiskUsage         float64 `json:"disk_usage"`
		NetworkIO         float64 `json:"network_io"`
		ActiveConnections int     `json:"active_connections"`
		ResponseTime      float64 `json:"response_time"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	m := scaler.SystemMetrics{
		CPUUsage:          payload.CPUUsage,
		MemoryUsage:       payload.MemoryUsage,
		DiskUsage:         payload.DiskUsage,
		NetworkIO:         payload.NetworkIO,
		ActiveConnections: payload.ActiveConnections,
		ResponseTime:      payload.ResponseTime,
		Timestamp:         time.Now(),
	}
	core.AddMetrics(m)

	if DB != nil {
		if err := SaveSample(m, "agent", payload.Hostname); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
