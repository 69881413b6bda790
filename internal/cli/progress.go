package cli

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// BatchProgress draws a progress bar advanced once per finished batch.
type BatchProgress struct {
	writer      io.Writer
	bar         *progressbar.ProgressBar
	description string
	last        int
	mu          sync.Mutex
}

// NewBatchProgress creates a progress bar writing to writer. The bar is
// sized on the first update, once the batch count is known.
func NewBatchProgress(writer io.Writer, description string) *BatchProgress {
	return &BatchProgress{writer: writer, description: description}
}

// Update matches llm.ProgressFunc. It is safe for concurrent use.
func (p *BatchProgress) Update(done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(p.writer),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("[cyan][bold]"+p.description+"[reset]"),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionOnCompletion(func() {
				if _, err := fmt.Fprintln(p.writer); err != nil {
					slog.Warn("Failed to write newline after progress bar", "error", err)
				}
			}),
		)
	}

	// Callbacks from concurrent batches can arrive out of order.
	if done <= p.last {
		return
	}
	p.last = done
	if err := p.bar.Set(done); err != nil {
		slog.Warn("Failed to update progress bar", "error", err)
	}
}

// Finished reports whether every batch has been counted.
func (p *BatchProgress) Finished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bar != nil && p.bar.IsFinished()
}
