package publisher

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fides/pkg/platform/audit"
)

type captureSink struct {
	mu      sync.Mutex
	records [][]byte
	keys    []string
}

func (s *captureSink) Produce(_ context.Context, _ string, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, value)
	s.keys = append(s.keys, key)
	return nil
}

func (s *captureSink) snapshot() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.records))
	copy(out, s.records)
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublisher_ShipsEvents(t *testing.T) {
	sink := &captureSink{}
	pub := New(sink, "audit.test", discardLogger())

	pub.Publish(audit.Event{
		Action:     audit.ActionCredentialIssued,
		ExchangeID: "exchange-1",
		SubjectDID: "did:web:holder.example.com",
	})
	pub.Close()

	records := sink.snapshot()
	require.Len(t, records, 1)

	var got audit.Event
	require.NoError(t, json.Unmarshal(records[0], &got))
	assert.Equal(t, audit.ActionCredentialIssued, got.Action)
	assert.Equal(t, "exchange-1", got.ExchangeID)
	assert.NotEmpty(t, got.ID)
	assert.False(t, got.OccurredAt.IsZero())
}

func TestPublisher_DropsWhenBufferFull(t *testing.T) {
	blocked := make(chan struct{})
	sink := &blockingSink{release: blocked}
	pub := New(sink, "audit.test", discardLogger(), WithBuffer(1), WithTimeout(time.Second))

	for i := 0; i < 10; i++ {
		pub.Publish(audit.Event{Action: audit.ActionVerificationStarted, ExchangeID: "x"})
	}
	close(blocked)
	pub.Close()

	// Only what fit the buffer (plus at most one in flight) gets shipped.
	assert.LessOrEqual(t, sink.count(), 3)
}

type blockingSink struct {
	mu      sync.Mutex
	n       int
	release chan struct{}
}

func (s *blockingSink) Produce(_ context.Context, _, _ string, _ []byte) error {
	<-s.release
	s.mu.Lock()
	s.n++
	s.mu.Unlock()
	return nil
}

func (s *blockingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}
