// Package progress reports batch ingestion progress on the command line.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// Reporter receives per-file progress of a batch. Progress may be called
// from several goroutines.
type Reporter interface {
	Start(total int)
	Progress(done, total int, name string)
	Finish()
}

// NewReporter returns a CIReporter when running under CI, else a
// TerminalReporter. Both write to stderr.
func NewReporter(description string) Reporter {
	if os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" {
		return &CIReporter{Out: os.Stderr}
	}
	return &TerminalReporter{Out: os.Stderr, Description: description}
}

// TerminalReporter displays a progress bar.
type TerminalReporter struct {
	Out         io.Writer
	Description string

	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

func (r *TerminalReporter) Start(total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(r.Out),
		progressbar.OptionSetDescription(r.Description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func (r *TerminalReporter) Progress(done, _ int, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar == nil {
		return
	}
	// Workers finish out of order; never move the bar backwards.
	if done > int(r.bar.State().CurrentNum) {
		r.bar.Describe(name)
		_ = r.bar.Set(done)
	}
}

func (r *TerminalReporter) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}

// CIReporter prints one line per file, suitable for CI logs.
type CIReporter struct {
	Out io.Writer

	mu sync.Mutex
}

func (r *CIReporter) Start(total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.Out, "Ingesting %d file(s)\n", total)
}

func (r *CIReporter) Progress(done, total int, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.Out, "[%d/%d] %s\n", done, total, name)
}

func (r *CIReporter) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.Out, "Ingestion complete")
}
