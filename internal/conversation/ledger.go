package conversation

import (
	"context"
	"fmt"
	"sync"
)

// MemoryLedger is an in-process SendLedger for tests and single-instance runs.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]string
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]string)}
}

// Lookup returns the delivery id recorded for token.
func (l *MemoryLedger) Lookup(_ context.Context, token string) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.entries[token]
	return id, ok, nil
}

// Record stores the delivery id for token. The first record wins.
func (l *MemoryLedger) Record(_ context.Context, token, deliveryID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[token]; !ok {
		l.entries[token] = deliveryID
	}
	return nil
}

func initialToken(conversationID string) string {
	return conversationID + ":initial"
}

func followUpToken(conversationID string, attempt int) string {
	return fmt.Sprintf("%s:followup:%d", conversationID, attempt)
}
