package transform

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// StageError reports which step of a multi-chunk transform failed. The
// transform is all-or-nothing: a failed chunk discards every earlier
// chunk's output.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("transform failed at %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Engine drives a text through the model. Long inputs are split at
// sentence boundaries and submitted sequentially, with a cooldown between
// chunks and a per-chunk timeout.
type Engine struct {
	generator     Generator
	maxChunkChars int
	chunkTimeout  time.Duration
	cooldown      time.Duration
	sleep         func(ctx context.Context, d time.Duration) error
}

func NewEngine(generator Generator, maxChunkChars int, chunkTimeout, cooldown time.Duration) *Engine {
	return &Engine{
		generator:     generator,
		maxChunkChars: maxChunkChars,
		chunkTimeout:  chunkTimeout,
		cooldown:      cooldown,
		sleep:         sleepContext,
	}
}

// Transform runs the prompt over the text and returns the combined output.
// Multi-chunk inputs carry a part annotation so the model knows it is
// seeing a fragment; single-chunk inputs carry none.
func (e *Engine) Transform(ctx context.Context, text, promptTemplate string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", &StageError{Stage: "input", Err: fmt.Errorf("text is empty")}
	}

	chunks := SplitChunks(text, e.maxChunkChars)
	total := len(chunks)
	results := make([]string, 0, total)

	for i, chunk := range chunks {
		prompt := buildPrompt(promptTemplate, chunk, i+1, total)

		chunkCtx, cancel := context.WithTimeout(ctx, e.chunkTimeout)
		output, err := e.generator.Generate(chunkCtx, prompt)
		cancel()

		if err != nil {
			return "", &StageError{
				Stage: fmt.Sprintf("chunk %d of %d", i+1, total),
				Err:   err,
			}
		}

		slog.Debug("Chunk transformed", "chunk", i+1, "total", total, "output_length", len(output))
		results = append(results, output)

		if i < total-1 && e.cooldown > 0 {
			if err := e.sleep(ctx, e.cooldown); err != nil {
				return "", &StageError{
					Stage: fmt.Sprintf("cooldown after chunk %d of %d", i+1, total),
					Err:   err,
				}
			}
		}
	}

	return strings.Join(results, "\n\n"), nil
}

// Titles generates up to n independent title candidates from the text.
// Individual failures are logged and skipped.
func (e *Engine) Titles(ctx context.Context, text string, n int) []string {
	excerpt := text
	if len(excerpt) > 4000 {
		excerpt = excerpt[:4000]
	}

	prompt := "Write a single short, compelling title for the following text. " +
		"Respond with the title only, no quotes and no explanation.\n\n" + excerpt

	var titles []string
	for i := 0; i < n; i++ {
		chunkCtx, cancel := context.WithTimeout(ctx, e.chunkTimeout)
		output, err := e.generator.Generate(chunkCtx, prompt)
		cancel()

		if err != nil {
			slog.Warn("Title generation failed", "attempt", i+1, "error", err)
			continue
		}

		title := firstLine(output)
		if title != "" {
			titles = append(titles, title)
		}

		if i < n-1 && e.cooldown > 0 {
			if err := e.sleep(ctx, e.cooldown); err != nil {
				break
			}
		}
	}

	return titles
}

func buildPrompt(promptTemplate, chunk string, part, total int) string {
	if total > 1 {
		return fmt.Sprintf("%s\n\nThis is part %d of %d of the source text.\n\n%s",
			promptTemplate, part, total, chunk)
	}
	return promptTemplate + "\n\n" + chunk
}

func firstLine(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	return strings.Trim(strings.TrimSpace(line), `"`)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
