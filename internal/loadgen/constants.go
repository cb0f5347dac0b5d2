package loadgen

import "time"

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	DefaultSettle     = 2 * time.Second
	readyPollInterval = 500 * time.Millisecond
	dirPermission     = 0o750
	filePermission    = 0o600
)
