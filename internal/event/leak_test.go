package event

import (
	"bytes"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis/kisrt/pkg/logger"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func register(h *Handler[tick], released chan struct{}) {
	h.Add(func(_ any, _ tick) {}, nil, false, func() { close(released) })
}

func TestLeakDetectorReleasesDroppedTicket(t *testing.T) {
	var out syncBuffer
	h := NewHandler[tick](logger.NewWithWriter(&out, "debug"), WithLeakDetection(true))

	released := make(chan struct{})
	register(h, released)

	require.Eventually(t, func() bool {
		runtime.GC()
		select {
		case <-released:
			return true
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, h.Len())
	assert.Contains(t, out.String(), "collected without Unsubscribe")
}

func TestLeakDetectorIgnoresUnsubscribedTicket(t *testing.T) {
	var out syncBuffer
	h := NewHandler[tick](logger.NewWithWriter(&out, "debug"), WithLeakDetection(true))

	func() {
		ticket := h.On(func(_ any, _ tick) {})
		ticket.Unsubscribe()
	}()

	for i := 0; i < 3; i++ {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}

	assert.NotContains(t, out.String(), "collected without Unsubscribe")
}

func TestLeakDetectorSuppressedTicketReleasesSilently(t *testing.T) {
	var out syncBuffer
	h := NewHandler[tick](logger.NewWithWriter(&out, "debug"), WithLeakDetection(true))

	released := make(chan struct{})
	func() {
		ticket := h.Add(func(_ any, _ tick) {}, nil, false, func() { close(released) })
		ticket.Suppress()
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		select {
		case <-released:
			return true
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, h.Len())
	assert.NotContains(t, out.String(), "collected without Unsubscribe")
}
