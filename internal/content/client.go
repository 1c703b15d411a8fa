// Package content implements the external content capabilities consumed by
// the generation controller: an HTTP client to the generation service, local
// file export, and fallback defaults for when the service is unavailable.
package content

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/courseforge/backend/internal/domain"
)

// Client talks JSON-over-HTTP to the external generation service. Every call
// is long-running and may fail; callers decide how to isolate failures.
type Client struct {
	baseURL string
	weeks   int
	http    *http.Client
	logger  *slog.Logger
}

// ClientConfig holds configuration for the generation service client.
type ClientConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	WeeksPerModule int
}

// NewClient creates a generation service client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	weeks := cfg.WeeksPerModule
	if weeks <= 0 {
		weeks = 12
	}
	return &Client{
		baseURL: cfg.BaseURL,
		weeks:   weeks,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type ingestRequest struct {
	Filename string `json:"filename"`
	Document string `json:"document"` // base64
}

type planRequest struct {
	ModuleData *domain.ModuleData `json:"module_data"`
	Weeks      int                `json:"weeks"`
}

type planResponse struct {
	WeekPlans []domain.WeekPlan `json:"week_plans"`
}

type generateRequest struct {
	ModuleData   *domain.ModuleData `json:"module_data"`
	WeekPlan     domain.WeekPlan    `json:"week_plan"`
	MaterialType string             `json:"material_type"`
}

type generateResponse struct {
	Items []domain.ContentItem `json:"items"`
}

// ExtractModuleData sends an uploaded specification document for ingestion.
func (c *Client) ExtractModuleData(ctx context.Context, document []byte, filename string) (*domain.ModuleData, error) {
	req := ingestRequest{
		Filename: filename,
		Document: base64.StdEncoding.EncodeToString(document),
	}
	var module domain.ModuleData
	if err := c.post(ctx, "/v1/ingest", req, &module); err != nil {
		return nil, fmt.Errorf("extract module data: %w", err)
	}
	return &module, nil
}

// GenerateWeekPlans asks the planning capability for the weekly syllabus.
func (c *Client) GenerateWeekPlans(ctx context.Context, module *domain.ModuleData) ([]domain.WeekPlan, error) {
	var resp planResponse
	if err := c.post(ctx, "/v1/plan", planRequest{ModuleData: module, Weeks: c.weeks}, &resp); err != nil {
		return nil, fmt.Errorf("generate week plans: %w", err)
	}
	if len(resp.WeekPlans) == 0 {
		return nil, fmt.Errorf("generate week plans: empty plan returned")
	}
	return resp.WeekPlans, nil
}

// GenerateMaterial asks the content capability for one material type of one
// week.
func (c *Client) GenerateMaterial(ctx context.Context, module *domain.ModuleData, week domain.WeekPlan, materialType string) ([]domain.ContentItem, error) {
	var resp generateResponse
	req := generateRequest{ModuleData: module, WeekPlan: week, MaterialType: materialType}
	if err := c.post(ctx, "/v1/generate", req, &resp); err != nil {
		return nil, fmt.Errorf("generate %s: %w", materialType, err)
	}
	return resp.Items, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call generation service: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("generation service %s returned %d: %s", path, resp.StatusCode, snippet)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	c.logger.Debug("Generation service call completed",
		"path", path,
		"duration", time.Since(started))
	return nil
}
