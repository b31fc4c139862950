package adapter

import (
	"errors"
	"time"

	"github.com/heptiolabs/healthcheck"

	"github.com/srediag/plugin-bus/pkg/bus"
)

// NewHealthHandler builds a healthcheck handler for b. Liveness verifies the
// delivery loop still drains its queue; readiness requires a bridge.
func NewHealthHandler(b *bus.Bus) healthcheck.Handler {
	h := healthcheck.NewHandler()
	h.AddLivenessCheck("bus-delivery", func() error {
		done := make(chan struct{})
		go func() {
			b.Sync()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-time.After(time.Second):
			return errors.New("delivery loop stalled")
		}
	})
	h.AddReadinessCheck("bridge-attached", func() error {
		if b.Bridge() == nil {
			return errors.New("no bridge attached")
		}
		return nil
	})
	return h
}
