package rologging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roby-engine/roby/internal/ports"
)

func TestLogger_WritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Writer: &buf, Level: "debug", Component: "engine"})
	require.NoError(t, err)

	ctx := ports.WithCorrelationID(context.Background(), "cid-123")
	l.Info(ctx, "cycle started", "cycle", 4)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "cycle started", line["message"])
	require.Equal(t, "engine", line["component"])
	require.Equal(t, "cid-123", line["correlation_id"])
	require.Equal(t, float64(4), line["cycle"])
}

func TestLogger_With_AddsPersistentFields(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Writer: &buf, Level: "debug"})
	require.NoError(t, err)

	derived := l.With("task_id", "t1")
	derived.Warn(context.Background(), "quarantined")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "t1", line["task_id"])
}
