package jobqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Job is the payload submitted to the downstream render queue. VideoNumber
// is the slot index within the publication day.
type Job struct {
	ChannelCode     string   `json:"channel_code"`
	VideoNumber     int      `json:"video_number"`
	Date            string   `json:"date"`
	ScriptText      string   `json:"script_text"`
	TitleCandidates []string `json:"title_candidates"`
	ThumbnailURL    string   `json:"thumbnail_url"`
	SourceTitle     string   `json:"source_title"`
}

type JobStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Client talks to the downstream job queue over HTTP with x-api-key auth.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Submit enqueues a job and returns its id.
func (c *Client) Submit(ctx context.Context, job Job) (string, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, "/queue/audio/jobs", payload)
	if err != nil {
		return "", err
	}

	var response struct {
		JobID string `json:"job_id"`
		ID    string `json:"id"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("failed to parse submit response: %w", err)
	}

	jobID := response.JobID
	if jobID == "" {
		jobID = response.ID
	}
	if jobID == "" {
		return "", fmt.Errorf("submit response carries no job id")
	}

	slog.Info("Job submitted", "job_id", jobID, "channel_code", job.ChannelCode, "date", job.Date, "video_number", job.VideoNumber)
	return jobID, nil
}

// Status fetches the current state of a job.
func (c *Client) Status(ctx context.Context, jobID string) (*JobStatus, error) {
	body, err := c.do(ctx, http.MethodGet, "/queue/audio/jobs/"+jobID, nil)
	if err != nil {
		return nil, err
	}

	var status JobStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("failed to parse status response: %w", err)
	}
	if status.ID == "" {
		status.ID = jobID
	}

	return &status, nil
}

// Cancel removes a job from the queue.
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	if _, err := c.do(ctx, http.MethodDelete, "/queue/audio/jobs/"+jobID, nil); err != nil {
		return err
	}

	slog.Info("Job cancelled", "job_id", jobID)
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("job queue request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read job queue response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("job queue returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return body, nil
}
