// Package api is the HTTP client the CLI uses to talk to the techmatch server.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"techmatch/api/model"
	"techmatch/api/sla"
	"techmatch/api/timeline"
)

type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type Job struct {
	model.Job
	SLA sla.Summary `json:"sla"`
}

type JobDetail struct {
	model.Job
	Timers []model.SLATimer `json:"timers"`
	SLA    sla.Summary      `json:"sla"`
}

type JobList struct {
	Jobs  []Job `json:"jobs"`
	Total int   `json:"total"`
}

type ServiceHealth struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

type HealthStatus struct {
	Status   string          `json:"status"`
	Services []ServiceHealth `json:"services"`
}

type Overview struct {
	Jobs   int                `json:"jobs"`
	Counts map[sla.Status]int `json:"counts"`
	Stale  bool               `json:"stale"`
}

func (c *Client) Health() (*HealthStatus, error) {
	var h HealthStatus
	if err := c.get("/api/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) ListJobs(status string) (*JobList, error) {
	path := "/api/jobs"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var list JobList
	if err := c.get(path, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *Client) GetJob(id string) (*JobDetail, error) {
	var job JobDetail
	if err := c.get("/api/jobs/"+id, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) Assign(jobID, technicianID string) (*JobDetail, error) {
	var job JobDetail
	body := map[string]string{"technicianId": technicianID}
	if err := c.post("/api/jobs/"+jobID+"/assign", body, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) Cancel(jobID string) (*JobDetail, error) {
	var job JobDetail
	if err := c.post("/api/jobs/"+jobID+"/cancel", nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) CompleteStage(jobID, stage string) (*JobDetail, error) {
	var job JobDetail
	if err := c.post("/api/jobs/"+jobID+"/stages/"+url.PathEscape(stage)+"/complete", nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) Events(jobID string) ([]timeline.Event, error) {
	var events []timeline.Event
	if err := c.get("/api/jobs/"+jobID+"/events", &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Client) Overview() (*Overview, error) {
	var o Overview
	if err := c.get("/api/sla/overview", &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *Client) LatestReport() (*model.DailyReport, error) {
	var r model.DailyReport
	if err := c.get("/api/reports/latest", &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// WebSocketURL returns the live feed address, narrowed to one job when
// jobID is set.
func (c *Client) WebSocketURL(jobID string) string {
	base := c.BaseURL
	base = strings.Replace(base, "http://", "ws://", 1)
	base = strings.Replace(base, "https://", "wss://", 1)
	if jobID != "" {
		return base + "/ws?job=" + url.QueryEscape(jobID)
	}
	return base + "/ws"
}

func (c *Client) get(path string, v any) error {
	req, err := http.NewRequest(http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, v)
}

func (c *Client) post(path string, body, v any) error {
	var r io.Reader = strings.NewReader("{}")
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(http.MethodPost, c.BaseURL+path, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, v)
}

func (c *Client) do(req *http.Request, v any) error {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if v == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func decodeError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &e) == nil && e.Error != "" {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, e.Error)
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}
