package app

import (
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"
)

// startupFlags are read ahead of Config so the binary can be imported by tests without a
// database, Redis or a JWT secret.
type startupFlags struct {
	TestMode bool `envconfig:"ACCESSD_TEST_MODE"`
}

const (
	modeUnknown int32 = iota
	modeServe
	modeTest
)

var startupMode atomic.Int32

// InTestMode reports whether startup side effects (connections, listeners) are skipped.
func InTestMode() bool {
	if mode := startupMode.Load(); mode != modeUnknown {
		return mode == modeTest
	}
	return RefreshTestMode()
}

// RefreshTestMode re-reads ACCESSD_TEST_MODE and returns the new setting. Values that do
// not parse as a boolean leave the process in serve mode.
func RefreshTestMode() bool {
	var flags startupFlags
	if err := envconfig.Process("", &flags); err != nil {
		flags.TestMode = false
	}
	mode := modeServe
	if flags.TestMode {
		mode = modeTest
	}
	startupMode.Store(mode)
	return flags.TestMode
}
