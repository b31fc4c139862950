package bus

// Option configures a Bus at construction time.
type Option func(*Bus)

// WithObserver installs an observer for bus activity. The default observer
// discards everything.
func WithObserver(o Observer) Option {
	return func(b *Bus) {
		if o != nil {
			b.obs = o
		}
	}
}

// WithQueueHint sizes the delivery queue's initial capacity.
func WithQueueHint(hint int64) Option {
	return func(b *Bus) {
		if hint > 0 {
			b.queueHint = hint
		}
	}
}
