package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/ahmetcoskunkizilkaya/nexusart/internal/messaging"
)

// Notifier records outbound messages instead of sending them.
type Notifier struct {
	mu   sync.Mutex
	sent []messaging.Outbound
	Err  error
}

func (n *Notifier) Send(_ context.Context, msg messaging.Outbound) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	if n.Err != nil {
		return "", n.Err
	}
	return fmt.Sprintf("SM%030d", len(n.sent)), nil
}

func (n *Notifier) Sent() []messaging.Outbound {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]messaging.Outbound, len(n.sent))
	copy(out, n.sent)
	return out
}

func (n *Notifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}
