package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func newTestHandler(buf *bytes.Buffer) *PrettyHandler {
	opts := DefaultOptions()
	opts.UseColor = false
	opts.DisableTimestamp = true
	return NewPrettyHandler(buf, &opts)
}

func TestHandleWritesLevelAndMessage(t *testing.T) {
	var buf bytes.Buffer
	h := newTestHandler(&buf)
	logger := slog.New(h)

	logger.Info("sidecar written", "file", "disk.img.bhl")

	out := buf.String()
	if !strings.Contains(out, "INFO") {
		t.Errorf("output %q does not contain level INFO", out)
	}
	if !strings.Contains(out, "sidecar written") {
		t.Errorf("output %q does not contain the message", out)
	}
	if !strings.Contains(out, "disk.img.bhl") {
		t.Errorf("output %q does not contain the attribute value", out)
	}
}

func TestEnabledRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.SlogOpts.Level = slog.LevelWarn
	h := NewPrettyHandler(&buf, &opts)

	if h.Enabled(nil, slog.LevelInfo) {
		t.Errorf("handler at Warn level should not be enabled for Info")
	}
	if !h.Enabled(nil, slog.LevelError) {
		t.Errorf("handler at Warn level should be enabled for Error")
	}
}

func TestWithAttrsAttachesToEverySubsequentRecord(t *testing.T) {
	var buf bytes.Buffer
	h := newTestHandler(&buf)
	logger := slog.New(h).With("component", "scanner")

	logger.Info("scanning")

	if !strings.Contains(buf.String(), "scanner") {
		t.Errorf("output %q does not carry the attribute attached via With", buf.String())
	}
}

func TestWithGroupNestsAttributes(t *testing.T) {
	var buf bytes.Buffer
	h := newTestHandler(&buf)
	logger := slog.New(h).WithGroup("scan").With("bytesScanned", 1024)

	logger.Info("progress")

	out := buf.String()
	if !strings.Contains(out, "scan") || !strings.Contains(out, "bytesScanned") {
		t.Errorf("output %q does not reflect the group and its nested attribute", out)
	}
}

func TestDefaultOptionsFillsInMissingValues(t *testing.T) {
	h := NewPrettyHandler(&bytes.Buffer{}, &PrettyHandlerOptions{})
	if h.opts.TimeFormat == "" {
		t.Errorf("NewPrettyHandler should default an empty TimeFormat")
	}
	if h.opts.LevelWidth < 5 {
		t.Errorf("NewPrettyHandler should default LevelWidth to at least 5, got %d", h.opts.LevelWidth)
	}
	if h.opts.FieldSeparator == "" {
		t.Errorf("NewPrettyHandler should default an empty FieldSeparator")
	}
}
