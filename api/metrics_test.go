package api

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

func TestBoardRequestMetricsLogsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New()
	logger.SetOutput(&buf)

	m, ctx := newBoardRequestMetrics(context.Background(), logger)
	if ctx == nil {
		t.Fatal("span context is nil")
	}
	m.ObserveAuth(2 * time.Millisecond)
	m.ObserveBuild(time.Millisecond)
	m.ObserveEncode(time.Millisecond)
	m.SetBucketSizes(1, 2, 3)
	m.Log(200, nil)

	out := buf.String()
	for _, want := range []string{"board.request.metrics", "auth_ms", "build_ms", "encode_ms", "overdue=1", "todo=2", "done=3"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log line missing %q: %s", want, out)
		}
	}
	if strings.Contains(out, "error_stage") {
		t.Fatalf("unexpected error stage: %s", out)
	}
}

func TestBoardRequestMetricsLogsErrorStage(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New()
	logger.SetOutput(&buf)

	m, _ := newBoardRequestMetrics(context.Background(), logger)
	m.SetErrorStage("auth")
	m.Log(401, errMissingAuthorization)

	out := buf.String()
	if !strings.Contains(out, "error_stage=auth") {
		t.Fatalf("log line missing error stage: %s", out)
	}
	if !strings.Contains(out, "missing authorization header") {
		t.Fatalf("log line missing error: %s", out)
	}
}

func TestBoardRequestMetricsNilReceiver(t *testing.T) {
	var m *boardRequestMetrics
	m.Log(500, nil) // must not panic
}

func TestDurationToMillis(t *testing.T) {
	if got := durationToMillis(1500 * time.Microsecond); got != 1.5 {
		t.Fatalf("got %v, want 1.5", got)
	}
	if got := durationToMillis(-time.Second); got != 0 {
		t.Fatalf("got %v, want 0", got)
	}
}
