package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/driftworks/dripfeed/app/keypool"
)

// ErrNotFound is returned when the provider has no transcript for the item.
var ErrNotFound = errors.New("transcript not found")

// errKeyQuota signals that the current key is out of provider quota and the
// request should be retried with the next key.
var errKeyQuota = errors.New("key quota exceeded")

// TranscriptClient fetches item transcripts from the transcript provider.
// Each request consumes one grant from the key pool; quota responses rotate
// to the next key instead of failing the fetch.
type TranscriptClient struct {
	baseURL    string
	pool       *keypool.Pool
	httpClient *http.Client
	userAgent  string
}

func NewTranscriptClient(baseURL string, pool *keypool.Pool, userAgent string) *TranscriptClient {
	return &TranscriptClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		pool:    pool,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		userAgent: userAgent,
	}
}

// Fetch returns the plain-text transcript for the item, normalized to NFC.
func (c *TranscriptClient) Fetch(ctx context.Context, videoID string) (string, error) {
	if videoID == "" {
		return "", fmt.Errorf("video ID is empty")
	}

	for {
		key, err := c.pool.Acquire(ctx)
		if err != nil {
			return "", err
		}

		text, err := c.fetchWithKey(ctx, key, videoID)
		if errors.Is(err, errKeyQuota) {
			c.pool.MarkExhausted(key)
			continue
		}
		if err != nil {
			return "", err
		}

		if err := c.pool.RecordUse(key); err != nil {
			slog.Error("Failed to persist key usage", "key", key.Label, "error", err)
		}

		return norm.NFC.String(text), nil
	}
}

func (c *TranscriptClient) fetchWithKey(ctx context.Context, key keypool.Key, videoID string) (string, error) {
	reqURL := fmt.Sprintf("%s/v1/transcript?videoId=%s", c.baseURL, url.QueryEscape(videoID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", key.Secret)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcript request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to parsing
	case http.StatusNotFound:
		return "", ErrNotFound
	case http.StatusPaymentRequired, http.StatusTooManyRequests:
		return "", errKeyQuota
	default:
		return "", fmt.Errorf("transcript provider returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read transcript response: %w", err)
	}

	text, err := parseTranscriptBody(body)
	if err != nil {
		return "", err
	}

	slog.Debug("Transcript fetched", "video_id", videoID, "key", key.Label, "length", len(text))
	return text, nil
}

// parseTranscriptBody accepts the provider's response shapes: a segment
// array under "content", or a flat "transcript" / "text" string.
func parseTranscriptBody(body []byte) (string, error) {
	var payload struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		Transcript string `json:"transcript"`
		Text       string `json:"text"`
	}

	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("failed to parse transcript response: %w", err)
	}

	if len(payload.Content) > 0 {
		parts := make([]string, 0, len(payload.Content))
		for _, segment := range payload.Content {
			if segment.Text != "" {
				parts = append(parts, segment.Text)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, " "), nil
		}
	}
	if payload.Transcript != "" {
		return payload.Transcript, nil
	}
	if payload.Text != "" {
		return payload.Text, nil
	}

	return "", ErrNotFound
}
