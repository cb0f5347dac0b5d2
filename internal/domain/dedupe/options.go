package dedupe

import "time"

// Option applies a configuration option to the deduper.
type Option func(*ringDeduper)

// WithMaxSize bounds how many ids are remembered. The oldest id is forgotten
// first. maxSize <= 0 keeps every id.
func WithMaxSize(maxSize int) Option {
	return func(d *ringDeduper) {
		d.maxSize = maxSize
	}
}

// WithTTL forgets ids older than ttl. Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(d *ringDeduper) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(d *ringDeduper) {
		if now != nil {
			d.now = now
		}
	}
}
