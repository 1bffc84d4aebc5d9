package scheduler

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// ChannelTransport dispatches job ids through a buffered channel inside the
// process.
type ChannelTransport struct {
	ch        chan uuid.UUID
	closed    chan struct{}
	closeOnce sync.Once
}

// NewChannelTransport creates a transport buffering up to size ids.
func NewChannelTransport(size int) *ChannelTransport {
	if size <= 0 {
		size = 100
	}
	return &ChannelTransport{
		ch:     make(chan uuid.UUID, size),
		closed: make(chan struct{}),
	}
}

// Publish never blocks; a full buffer returns ErrJobQueueFull and leaves the
// job to the poller.
func (t *ChannelTransport) Publish(_ context.Context, id uuid.UUID) error {
	select {
	case <-t.closed:
		return ErrSchedulerNotRunning
	default:
	}
	select {
	case t.ch <- id:
		return nil
	default:
		return ErrJobQueueFull
	}
}

func (t *ChannelTransport) Consume(context.Context) (<-chan uuid.UUID, error) {
	return t.ch, nil
}

func (t *ChannelTransport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}
