package ragstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status string            `json:"status"` // "ok", "degraded"
	Checks map[string]string `json:"checks"` // component → "ok"/"error"/"missing"
}

// Healthy reports whether every component passed.
func (h HealthStatus) Healthy() bool { return h.Status == "ok" }

// Health checks the health of all service components. A degraded service is
// reported in the status, not as an error.
func (c *Client) Health(ctx context.Context) (hs HealthStatus, err error) {
	start := time.Now()
	defer func() { c.obs.observe("health", start, err) }()

	resp, err := c.send(ctx, http.MethodGet, "/health", nil, "application/json")
	if err != nil {
		return HealthStatus{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return HealthStatus{}, decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&hs); err != nil {
		return HealthStatus{}, fmt.Errorf("ragstream: decode health response: %w", err)
	}
	return hs, nil
}
