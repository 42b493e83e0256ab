// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/paygate/pkg/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestSimpleFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(slog.LevelInfo, &buf, FormatSimple)

	log.With("task_id", "T1").WithGroup("payment").Info("Payment settled", "transaction", "0x1")
	log.Debug("hidden")

	assert.Equal(t, "INFO Payment settled task_id=T1 payment.transaction=0x1\n", buf.String())
}

func TestVerboseFormatHasTimestamp(t *testing.T) {
	var buf bytes.Buffer
	New(slog.LevelInfo, &buf, FormatVerbose).Warn("careful")

	line := buf.String()
	assert.True(t, strings.HasSuffix(line, "WARN careful\n"), line)
	assert.Greater(t, len(line), len("WARN careful\n"))
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	New(slog.LevelInfo, &buf, FormatJSON).Info("Task completed", "task_id", "T1")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "Task completed", record["msg"])
	assert.Equal(t, "T1", record["task_id"])
}

func TestFilteringHandlerHidesForeignRecords(t *testing.T) {
	var buf bytes.Buffer
	inner := &lineHandler{out: &lockedWriter{w: &buf}, level: slog.LevelDebug}
	ctx := context.Background()

	// A record without a caller counts as third-party.
	foreign := slog.NewRecord(time.Now(), slog.LevelInfo, "noise", 0)

	quiet := &filteringHandler{handler: inner, minLevel: slog.LevelInfo}
	require.NoError(t, quiet.Handle(ctx, foreign))
	assert.Empty(t, buf.String())

	debug := &filteringHandler{handler: inner, minLevel: slog.LevelDebug}
	require.NoError(t, debug.Handle(ctx, foreign))
	assert.Equal(t, "INFO noise\n", buf.String())
}

func TestSetupWritesToFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "logs", "paygate.log")
	cleanup, err := Setup(config.LoggerConfig{Level: "info", Format: FormatSimple, File: path})
	require.NoError(t, err)

	slog.Info("Server started", "port", 8080)
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "INFO Server started port=8080")
}

func TestSetupRejectsBadLevel(t *testing.T) {
	_, err := Setup(config.LoggerConfig{Level: "chatty"})
	assert.Error(t, err)
}
