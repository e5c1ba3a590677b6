package slogc

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFineLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWriter(&buf, "fine", "json")
	require.NoError(t, err)

	Fine(logger, "skipping rule", "index", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "FINE", rec["level"])
	require.Equal(t, "skipping rule", rec["msg"])
	require.EqualValues(t, 3, rec["index"])
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWriter(&buf, "", "text")
	require.NoError(t, err)

	Fine(logger, "hidden")
	logger.Debug("hidden")
	require.Empty(t, buf.String())

	logger.Info("shown")
	require.Contains(t, buf.String(), "msg=shown")
}

func TestInvalid(t *testing.T) {
	_, err := New("verbose", "text")
	require.Error(t, err)

	_, err = New("info", "xml")
	require.Error(t, err)
}
