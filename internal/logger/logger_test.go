package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func captureStdOut(fn func()) string {
	orig := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w
	defer func() {
		os.Stdout = orig
	}()

	fn()

	_ = w.Close()
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	_ = r.Close()
	return buf.String()
}

func restoreDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func TestParseEnv(t *testing.T) {
	assert.Equal(t, EnvDev, ParseEnv(""))
	assert.Equal(t, EnvStage, ParseEnv("Staging"))
	assert.Equal(t, EnvProd, ParseEnv(" production "))

	t.Setenv("APP_ENV", "prod")
	assert.Equal(t, EnvProd, DetectEnv())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}

func TestInit_DevStd_TextOutput(t *testing.T) {
	restoreDefault(t)

	out := captureStdOut(func() {
		Init(Config{Service: "relay", Version: "v0.0.1", Env: EnvDev, Backend: BackendStd, Level: slog.LevelDebug})
		slog.Info("Hello world")
	})

	assert.NotContains(t, out, "{")
	assert.Contains(t, out, "Hello world")
	assert.Contains(t, out, "service=relay")
	assert.Contains(t, out, "env=dev")
}

func TestInit_ProdZap_JSONOutput(t *testing.T) {
	restoreDefault(t)
	var buf bytes.Buffer

	Init(Config{
		Service:          "relay",
		Version:          "1.2.3",
		Env:              EnvProd,
		Output:           &buf,
		SampleInitial:    100000,
		SampleThereafter: 100000,
	})
	slog.Info("booted", slog.String("k", "v"))
	slog.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &m), lines[0])
	assert.Equal(t, "booted", m["msg"])
	assert.Equal(t, "v", m["k"])
	assert.Equal(t, "relay", m["service"])
	assert.Equal(t, "1.2.3", m["version"])
}

func TestAttrsFromCtx(t *testing.T) {
	assert.Nil(t, AttrsFromCtx(context.Background()))

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	restoreDefault(t)
	var buf bytes.Buffer
	Init(Config{Service: "relay", Env: EnvProd, Backend: BackendZap, Output: &buf})
	slog.InfoContext(ctx, "with trace", AttrsFromCtx(ctx)...)

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", m["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", m["span_id"])
}
