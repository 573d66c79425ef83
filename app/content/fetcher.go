package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Fetcher resolves an item's text: transcript provider first, readability
// extraction from the watch page when no transcript exists.
type Fetcher struct {
	transcripts *TranscriptClient
	fallback    *FallbackExtractor
	watchURL    func(videoID string) string
}

func NewFetcher(transcripts *TranscriptClient, fallback *FallbackExtractor) *Fetcher {
	return &Fetcher{
		transcripts: transcripts,
		fallback:    fallback,
		watchURL: func(videoID string) string {
			return fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
		},
	}
}

func (f *Fetcher) Fetch(ctx context.Context, videoID string) (string, error) {
	text, err := f.transcripts.Fetch(ctx, videoID)
	if err == nil {
		return text, nil
	}

	if errors.Is(err, ErrNotFound) && f.fallback != nil {
		slog.Debug("No transcript available, trying page extraction", "video_id", videoID)

		text, fallbackErr := f.fallback.Extract(ctx, f.watchURL(videoID))
		if fallbackErr != nil {
			return "", fmt.Errorf("%w (page extraction also failed: %v)", ErrNotFound, fallbackErr)
		}
		return text, nil
	}

	return "", err
}
