/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otellog "go.opentelemetry.io/otel/log"
)

func TestOTelConfig(t *testing.T) {
	config := DefaultOTelConfig()

	if config.BatchTimeout != Duration(5*time.Second) {
		t.Errorf("Expected default BatchTimeout to be 5s, got %v", config.BatchTimeout)
	}
}

func TestOTelConfigHeadersFromEnv(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_LOGS_HEADERS", "x-token = abc, tenant=lab ")
	t.Setenv("OTEL_EXPORTER_OTLP_LOGS_TIMEOUT", "750ms")

	config := DefaultOTelConfig()

	assert.Equal(t, map[string]string{"x-token": "abc", "tenant": "lab"}, config.Headers)
	assert.Equal(t, Duration(750*time.Millisecond), config.BatchTimeout)
}

func TestNewOTelWriterRejectsDisabledConfig(t *testing.T) {
	t.Parallel()

	writer, err := NewOTelWriter(context.Background(), OTelConfig{Enabled: false})
	require.ErrorIs(t, err, ErrOTelLoggingDisabled)
	assert.Nil(t, writer)

	writer, err = NewOTelWriter(context.Background(), OTelConfig{Enabled: true})
	require.ErrorIs(t, err, ErrOTelEndpointRequired)
	assert.Nil(t, writer)
}

func TestInitializeMetricsDisabled(t *testing.T) {
	t.Parallel()

	_, err := InitializeMetrics(context.Background(), MetricsConfig{})
	require.ErrorIs(t, err, ErrOTelMetricsDisabled)
}

func TestBuildRecord(t *testing.T) {
	t.Parallel()

	entry := map[string]interface{}{
		"time":      "2025-01-02T03:04:05Z",
		"level":     "warn",
		"message":   "alert threshold exceeded",
		"component": "tracker",
		"mac":       "aa:bb:cc:dd:ee:ff",
		"epoch":     float64(1070),
	}

	record, scope := buildRecord(entry)

	assert.Equal(t, "tracker", scope)
	assert.Equal(t, otellog.SeverityWarn, record.Severity())
	assert.Equal(t, "alert threshold exceeded", record.Body().AsString())
	assert.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), record.Timestamp().UTC())

	attrs := map[string]string{}
	record.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})

	assert.Equal(t, map[string]string{"epoch": "1070", "mac": "aa:bb:cc:dd:ee:ff"}, attrs)
}

func TestMapZerologLevelToOTEL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, otellog.SeverityDebug, mapZerologLevelToOTEL("debug"))
	assert.Equal(t, otellog.SeverityFatal, mapZerologLevelToOTEL("panic"))
	assert.Equal(t, otellog.SeverityInfo, mapZerologLevelToOTEL("unknown"))
}

type failingWriter struct{}

var errWriteFailed = errors.New("write failed")

func (failingWriter) Write([]byte) (int, error) { return 0, errWriteFailed }

func TestMultiWriter(t *testing.T) {
	t.Parallel()

	var a, b bytes.Buffer

	n, err := NewMultiWriter(&a, &b).Write([]byte("line\n"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "line\n", a.String())
	assert.Equal(t, "line\n", b.String())

	_, err = NewMultiWriter(&a, failingWriter{}).Write([]byte("x"))
	require.ErrorIs(t, err, errWriteFailed)
}
