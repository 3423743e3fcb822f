package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/paper-cli/internal/config"
	"github.com/sells-group/paper-cli/internal/model"
)

func TestBatchConfig(t *testing.T) {
	cfg = &config.Config{Batch: config.BatchConfig{
		DelayMs:              2000,
		Workers:              3,
		MaxRequestsPerMinute: 30,
		PollIntervalSecs:     10,
		DebounceMs:           1500,
		ProcessedDir:         "done",
		QueueSize:            8,
	}}

	bc := batchConfig("Lab")
	assert.Equal(t, "Lab", bc.Source)
	assert.Equal(t, 2*time.Second, bc.Delay)
	assert.Equal(t, 3, bc.Workers)
	assert.Equal(t, 30, bc.MaxRequestsPerMinute)
	assert.Equal(t, 10*time.Second, bc.PollInterval)
	assert.Equal(t, 1500*time.Millisecond, bc.Debounce)
	assert.Equal(t, "done", bc.ProcessedDir)
	assert.Equal(t, 8, bc.QueueSize)
}

func TestCheckFolder(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, checkFolder(dir))
	assert.Error(t, checkFolder(filepath.Join(dir, "missing")))

	file := filepath.Join(dir, "a.pdf")
	writeTestFile(t, file)
	err := checkFolder(file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestPrintOutcome_OneLinePerDocument(t *testing.T) {
	var buf bytes.Buffer
	emit := printOutcome(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			emit(model.BatchItemOutcome{
				Reference: model.NewReference(model.ReferenceLocalPath, "scan.pdf", "Lab"),
				Status:    model.StatusFailed,
				Error:     "scanned",
			})
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 10)
	for _, l := range lines {
		assert.Equal(t, "FAIL  scan.pdf: scanned", l)
	}
}

func TestRatesFromConfig(t *testing.T) {
	rates := ratesFromConfig(config.PricingConfig{
		Anthropic: map[string]config.ModelPricing{"claude-x": {Input: 1, Output: 2}},
	})
	assert.Equal(t, 1.0, rates.Anthropic["claude-x"].Input)
	assert.Equal(t, 2.0, rates.Anthropic["claude-x"].Output)
	assert.Nil(t, rates.Gemini)
}

func writeTestFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7"), 0o644))
}
