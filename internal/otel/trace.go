package otel

import (
	"os"
	"sync/atomic"
)

// traceEnabled turns on per-batch cluster events. Read on every batch,
// written once at init and by tests.
var traceEnabled atomic.Bool

func init() {
	traceEnabled.Store(os.Getenv("TOPICSTREAM_TRACE") != "")
}

// TraceEnabled reports whether TOPICSTREAM_TRACE is set.
func TraceEnabled() bool {
	return traceEnabled.Load()
}

// SetTraceEnabled overrides the environment, used by the --trace flag.
func SetTraceEnabled(v bool) {
	traceEnabled.Store(v)
}
