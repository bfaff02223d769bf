package api

import (
	"context"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tardsplaya/tardsplayad/internal/coordinator"
	"github.com/tardsplaya/tardsplayad/internal/version"
)

// HealthHandler reports process-level health: uptime, Go runtime stats, and
// the coordinator's active-stream count.
type HealthHandler struct {
	coord     *coordinator.Coordinator
	startTime time.Time
}

// NewHealthHandler creates a HealthHandler wired to coord.
func NewHealthHandler(coord *coordinator.Coordinator) *HealthHandler {
	return &HealthHandler{coord: coord, startTime: time.Now()}
}

// HealthInput is the input for GET /health.
type HealthInput struct{}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	ActiveStreams int    `json:"active_streams"`
	Goroutines    int    `json:"goroutines"`
}

// HealthOutput is the output for GET /health.
type HealthOutput struct {
	Body HealthResponse
}

// Register registers the health route with the huma API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns process uptime and the active-stream count",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth handles GET /health.
func (h *HealthHandler) GetHealth(ctx context.Context, input *HealthInput) (*HealthOutput, error) {
	return &HealthOutput{
		Body: HealthResponse{
			Status:        "ok",
			Version:       version.Short(),
			UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
			ActiveStreams: h.coord.ActiveCount(),
			Goroutines:    runtime.NumGoroutine(),
		},
	}, nil
}
