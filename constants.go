package server

import "time"

const (
	writeWait = 10 * time.Second

	// Broadcast cadence. State fan-out runs slower than physics; a periodic
	// full-state frame lets clients recover from any missed delta.
	defaultBroadcastInterval = 50 * time.Millisecond
	defaultFullInterval      = 5 * time.Second

	// Physics step wall-cost samples kept for the rolling average reported
	// in frame metrics.
	perfWindowSize = 50
)
