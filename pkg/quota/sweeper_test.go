package quota

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pagesmith/pagesmith/pkg/observability"
)

func TestSweeperPrunesOnlyExpiredRecords(t *testing.T) {
	store := &memoryStore{}
	now := time.Now()
	store.records = []*Record{
		{Tool: "certificate-generator", IP: "203.0.113.5", CreatedAt: now.Add(-48 * time.Hour)},
		{Tool: "certificate-generator", IP: "203.0.113.5", CreatedAt: now.Add(-26 * time.Hour)},
		{Tool: "certificate-generator", IP: "203.0.113.5", CreatedAt: now.Add(-23 * time.Hour)},
		{Tool: "certificate-generator", IP: "203.0.113.5", CreatedAt: now},
	}

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	s := NewSweeper(store, DefaultWindow, logger)
	s.sweep()

	// Records older than the window plus slack are gone, countable ones stay.
	assert.Len(t, store.records, 2)
	for _, r := range store.records {
		assert.True(t, r.CreatedAt.After(now.Add(-(DefaultWindow + retentionSlack))))
	}
}
