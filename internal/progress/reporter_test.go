package progress

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCIReporter(t *testing.T) {
	var buf bytes.Buffer
	r := &CIReporter{Out: &buf}

	r.Start(2)
	r.Progress(1, 2, "a.md")
	r.Progress(2, 2, "b.pdf")
	r.Finish()

	assert.Equal(t, "Ingesting 2 file(s)\n[1/2] a.md\n[2/2] b.pdf\nIngestion complete\n", buf.String())
}

func TestTerminalReporterConcurrentProgress(t *testing.T) {
	var buf bytes.Buffer
	r := &TerminalReporter{Out: &buf, Description: "Ingesting"}
	r.Start(50)

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Progress(i, 50, "doc.txt")
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 50, r.bar.State().CurrentNum)
	r.Finish()
}

func TestTerminalReporterIgnoresProgressBeforeStart(t *testing.T) {
	r := &TerminalReporter{Out: &bytes.Buffer{}}
	assert.NotPanics(t, func() {
		r.Progress(1, 1, "x")
		r.Finish()
	})
}
