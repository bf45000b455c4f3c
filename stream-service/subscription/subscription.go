// Package subscription relays Redis pub/sub messages into the stream
// service.
package subscription

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const reconnectDelay = time.Second

// Relay forwards every payload published on channel to publish until ctx is
// done, resubscribing when the connection drops.
func Relay(ctx context.Context, logger *log.Logger, rc *redis.Client, channel string, publish func([]byte) int) {
	for {
		sub := rc.Subscribe(ctx, channel)
		if _, err := sub.Receive(ctx); err != nil {
			_ = sub.Close()
			if ctx.Err() != nil {
				return
			}
			logger.Warnf("subscribe %s: %v", channel, err)
			if !sleep(ctx, reconnectDelay) {
				return
			}
			continue
		}

		ch := sub.Channel()
		open := true
		for open {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					open = false
					break
				}
				n := publish([]byte(msg.Payload))
				logger.WithField("subscribers", n).Debug("catch report relayed")
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Error("pubsub channel closed, reconnecting")
		if !sleep(ctx, reconnectDelay) {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
