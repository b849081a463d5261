package handler

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const readinessTimeout = 3 * time.Second

// HealthCheck checks one backing dependency. A nil error means healthy.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler serves GET /health (liveness) and GET /health/ready
// (readiness). Liveness never touches dependencies. Check failures are
// logged; the response only names the failing dependency.
type HealthHandler struct {
	checks []HealthCheck
	log    zerolog.Logger
}

func NewHealthHandler(log zerolog.Logger, checks ...HealthCheck) *HealthHandler {
	sorted := append([]HealthCheck(nil), checks...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return &HealthHandler{checks: sorted, log: log}
}

type dependencyStatus struct {
	Status string `json:"status"`
}

type readinessResponse struct {
	Status       string                      `json:"status"`
	Dependencies map[string]dependencyStatus `json:"dependencies"`
}

// Liveness confirms the process is serving requests.
//
// @Summary      Liveness check
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *HealthHandler) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness runs every dependency check concurrently under a shared deadline.
//
// @Summary      Readiness check
// @Tags         health
// @Produce      json
// @Success      200  {object}  readinessResponse
// @Failure      503  {object}  readinessResponse
// @Router       /health/ready [get]
func (h *HealthHandler) Readiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessTimeout)
	defer cancel()

	var (
		mu   sync.Mutex
		deps = make(map[string]dependencyStatus, len(h.checks))
	)

	// Checks report through deps rather than the group error so one failure
	// does not cancel the others.
	g, gctx := errgroup.WithContext(ctx)
	for _, hc := range h.checks {
		g.Go(func() error {
			st := dependencyStatus{Status: "ok"}
			if err := hc.Check(gctx); err != nil {
				h.log.Warn().Err(err).Str("dependency", hc.Name).Msg("readiness check failed")
				st = dependencyStatus{Status: "unhealthy"}
			}
			mu.Lock()
			deps[hc.Name] = st
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	status, code := "ok", http.StatusOK
	for _, st := range deps {
		if st.Status != "ok" {
			status, code = "degraded", http.StatusServiceUnavailable
			break
		}
	}

	return c.JSON(code, readinessResponse{Status: status, Dependencies: deps})
}
