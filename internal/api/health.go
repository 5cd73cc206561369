package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthCheck checks one dependency.
type HealthCheck func(ctx context.Context) error

// HealthChecker runs named dependency checks.
type HealthChecker struct {
	checks  map[string]HealthCheck
	timeout time.Duration
}

// NewHealthChecker creates a checker with a per-check timeout.
func NewHealthChecker(timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthChecker{
		checks:  make(map[string]HealthCheck),
		timeout: timeout,
	}
}

// Register adds a named check.
func (hc *HealthChecker) Register(name string, check HealthCheck) {
	hc.checks[name] = check
}

// Run executes all checks and reports whether every one passed.
func (hc *HealthChecker) Run(ctx context.Context) (map[string]string, bool) {
	results := make(map[string]string, len(hc.checks))
	healthy := true
	for name, check := range hc.checks {
		checkCtx, cancel := context.WithTimeout(ctx, hc.timeout)
		err := check(checkCtx)
		cancel()
		if err != nil {
			results[name] = err.Error()
			healthy = false
			continue
		}
		results[name] = "ok"
	}
	return results, healthy
}

// Health reports service and dependency health
// GET /health
func (h *Handler) Health(c *gin.Context) {
	checks := map[string]string{}
	healthy := true
	if h.health != nil {
		checks, healthy = h.health.Run(c.Request.Context())
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":  status,
		"service": "receipt-api",
		"checks":  checks,
	})
}
