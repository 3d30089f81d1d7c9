package messaging

import (
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/JournalPipe/internal/models"
)

// eventChannels owns a service's receipt and response channels. Sends hold the
// read lock so close never races with an in-progress send.
type eventChannels struct {
	mu        sync.RWMutex
	stopped   bool
	receipts  chan models.Receipt
	responses chan models.Response
}

func newEventChannels() *eventChannels {
	return &eventChannels{
		receipts:  make(chan models.Receipt, DefaultChannelBufferSize),
		responses: make(chan models.Response, DefaultChannelBufferSize),
	}
}

func (c *eventChannels) isStopped() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stopped
}

// emitReceipt reports whether the receipt was queued.
func (c *eventChannels) emitReceipt(receipt models.Receipt) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stopped {
		return false
	}
	select {
	case c.receipts <- receipt:
		return true
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("receipts channel blocked, dropping receipt", "to", receipt.To, "status", receipt.Status, "timeout", DefaultChannelTimeout)
		return false
	}
}

// emitResponse reports whether the response was queued.
func (c *eventChannels) emitResponse(response models.Response) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stopped {
		slog.Warn("dropping inbound response, service stopped", "from", response.From)
		return false
	}
	select {
	case c.responses <- response:
		return true
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("responses channel blocked, dropping message", "from", response.From, "timeout", DefaultChannelTimeout)
		return false
	}
}

// close closes both channels once. It reports false if already closed.
func (c *eventChannels) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return false
	}
	c.stopped = true
	close(c.receipts)
	close(c.responses)
	return true
}
