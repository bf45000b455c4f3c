package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	subscriberBuffer  = 16
	heartbeatInterval = 15 * time.Second
)

// Broker fans out catch report notifications to SSE subscribers. A
// subscriber whose buffer is full misses the notification.
type Broker struct {
	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[chan []byte]struct{})}
}

func (b *Broker) subscribe() chan []byte {
	ch := make(chan []byte, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) unsubscribe(ch chan []byte) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

// Subscribers returns the number of connected clients.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish delivers payload to every subscriber and returns how many got it.
func (b *Broker) Publish(payload []byte) int {
	delivered := 0
	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- payload:
			delivered++
		default:
		}
	}
	b.mu.Unlock()
	return delivered
}

func streamCatchReports(b *Broker) echo.HandlerFunc {
	return func(c echo.Context) error {
		res := c.Response()
		res.Header().Set(echo.HeaderContentType, "text/event-stream")
		res.Header().Set(echo.HeaderCacheControl, "no-cache")
		res.Header().Set(echo.HeaderConnection, "keep-alive")
		res.Header().Set("X-Accel-Buffering", "no")
		flusher, ok := res.Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		ch := b.subscribe()
		defer b.unsubscribe(ch)

		res.WriteHeader(http.StatusOK)
		if _, err := res.Write([]byte(": connected\n\n")); err != nil {
			return nil
		}
		flusher.Flush()

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()
		ctx := c.Request().Context()
		for {
			var frame []byte
			select {
			case <-ctx.Done():
				return nil
			case <-heartbeat.C:
				frame = []byte(": ping\n\n")
			case payload := <-ch:
				frame = make([]byte, 0, len(payload)+16)
				frame = append(frame, "event: catch_report\ndata: "...)
				frame = append(frame, payload...)
				frame = append(frame, "\n\n"...)
			}
			if _, err := res.Write(frame); err != nil {
				c.Logger().Debugf("sse client gone: %v", err)
				return nil
			}
			flusher.Flush()
		}
	}
}
