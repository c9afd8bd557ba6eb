/**
 * Food-log client for the label scan worker
 *
 * Pushes completed extractions to the food-log API so a pending food
 * record can be pre-filled with the parsed nutrient values. The push is
 * best effort: the durable result already lives in PostgreSQL, and the
 * API can pull it from there if the push never arrives.
 */

package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/nutrilens/labelscan-worker/internal/pipeline"
)

// FoodLogClient handles communication with the food-log API.
type FoodLogClient struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// extractionPush is the request body for the extraction push endpoint.
type extractionPush struct {
	JobID  string           `json:"jobId"`
	Result *pipeline.Result `json:"result"`
}

type pushResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// NewFoodLogClient creates a new food-log client.
func NewFoodLogClient(baseURL string, log zerolog.Logger) *FoodLogClient {
	return &FoodLogClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

// HealthCheck verifies the food-log API is available.
func (c *FoodLogClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("food-log health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("food-log health check returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// PushExtraction delivers a completed extraction result to the food-log
// API.
func (c *FoodLogClient) PushExtraction(ctx context.Context, result *pipeline.Result) error {
	if result == nil {
		return fmt.Errorf("result is required")
	}
	if result.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	payload, err := json.Marshal(&extractionPush{JobID: result.JobID, Result: result})
	if err != nil {
		return fmt.Errorf("failed to marshal extraction push: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/food-log/extractions", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("extraction push failed after %v: %w", time.Since(startTime), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read push response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("extraction push failed with HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var ack pushResponse
	if err := json.Unmarshal(respBody, &ack); err != nil {
		return fmt.Errorf("failed to parse push response: %w (raw response: %s)", err, string(respBody))
	}
	if !ack.Success {
		return fmt.Errorf("extraction push returned success=false: %s", ack.Error)
	}

	c.log.Debug().
		Str("job_id", result.JobID).
		Dur("elapsed", time.Since(startTime)).
		Msg("Extraction pushed to food-log API")

	return nil
}
