package telemetry

import (
	"bytes"
	"log"
	"testing"
)

func TestWrapLogger(t *testing.T) {
	t.Run("nil logger", func(t *testing.T) {
		logger := WrapLogger(nil)
		logger.Printf("ignored %d", 42)
	})

	t.Run("forwards to logger", func(t *testing.T) {
		var buf bytes.Buffer
		base := log.New(&buf, "", 0)
		logger := WrapLogger(base)
		logger.Printf("hello %s", "world")
		if got := buf.String(); got != "hello world\n" {
			t.Fatalf("unexpected log output: %q", got)
		}
	})
}

func TestLoggerFunc(t *testing.T) {
	var got string
	logger := LoggerFunc(func(format string, args ...any) {
		got = format
	})
	logger.Printf("captured")
	if got != "captured" {
		t.Fatalf("unexpected format: %q", got)
	}

	var nilLogger LoggerFunc
	nilLogger.Printf("ignored")
}

func TestNopMetrics(t *testing.T) {
	var metrics Metrics = NopMetrics{}
	metrics.Add("ignored", 1)
	metrics.Store("ignored", 2)
}
