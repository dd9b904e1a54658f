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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/presence/pkg/db"
	"github.com/carverauto/presence/pkg/models"
)

func seededStore(t *testing.T) *db.MemoryStore {
	t.Helper()

	store := db.NewMemoryStore()
	mac, err := net.ParseMAC("aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Write(ctx, models.NewSightingEvent(nil, nil, 1000, time.UTC, models.MessageDummy)))
	require.NoError(t, store.Write(ctx, models.NewSightingEvent(mac, nil, 1000, time.UTC, models.MessageAlive)))
	require.NoError(t, store.Write(ctx, models.NewSightingEvent(mac, nil, 1070, time.UTC, models.MessageDead)))

	return store
}

func decodeLines(t *testing.T, out string) []map[string]any {
	t.Helper()

	var rows []map[string]any

	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var row map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &row))
		rows = append(rows, row)
	}

	return rows
}

func TestDumpEventsLastN(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, dumpEvents(context.Background(), seededStore(t), 2, &buf))

	rows := decodeLines(t, buf.String())
	require.Len(t, rows, 2)
	assert.Equal(t, "Alive", rows[0]["message"])
	assert.Equal(t, "Dead", rows[1]["message"])
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", rows[1]["mac"])
	assert.InDelta(t, 1070, rows[1]["epoch"], 0)
}

func TestDumpEventsAll(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, dumpEvents(context.Background(), seededStore(t), -1, &buf))

	rows := decodeLines(t, buf.String())
	require.Len(t, rows, 3)
	assert.Equal(t, "Dummy", rows[0]["message"])
	assert.Nil(t, rows[0]["mac"])
}

func TestLoadConfigForDumpNeedsOnlyStore(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "")

	path := filepath.Join(t.TempDir(), "presence.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"store": {"driver": "memory"}}`), 0o600))

	var cfg models.PresenceConfig
	require.NoError(t, loadConfig(context.Background(), path, &cfg, true))
	assert.Equal(t, models.StoreDriverMemory, cfg.Store.Driver)
	assert.Equal(t, models.DefaultSightingTable, cfg.Store.Table)

	require.Error(t, loadConfig(context.Background(), path, &models.PresenceConfig{}, false))

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"store": {"driver": "oracle"}}`), 0o600))
	require.Error(t, loadConfig(context.Background(), bad, &models.PresenceConfig{}, true))
}

func cnpgConfig(password string) *models.PresenceConfig {
	return &models.PresenceConfig{
		Store: models.StoreConfig{
			Driver: models.StoreDriverCNPG,
			CNPG:   &models.CNPGDatabase{Host: "db", Password: password},
		},
	}
}

func TestApplyCNPGPassword(t *testing.T) {
	t.Run("config password wins", func(t *testing.T) {
		t.Setenv("CNPG_PASSWORD_FILE", "")

		cfg := cnpgConfig("inline")
		require.NoError(t, applyCNPGPassword(cfg))
		assert.Equal(t, "inline", cfg.Store.CNPG.Password)
	})

	t.Run("missing secret", func(t *testing.T) {
		t.Setenv("CNPG_PASSWORD_FILE", "")
		require.ErrorIs(t, applyCNPGPassword(cnpgConfig("")), ErrCNPGPasswordRequired)
	})

	t.Run("reads secret file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "password")
		require.NoError(t, os.WriteFile(path, []byte("s3cret\n"), 0o600))
		t.Setenv("CNPG_PASSWORD_FILE", path)

		cfg := cnpgConfig("")
		require.NoError(t, applyCNPGPassword(cfg))
		assert.Equal(t, "s3cret", cfg.Store.CNPG.Password)
	})

	t.Run("empty secret file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "password")
		require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o600))
		t.Setenv("CNPG_PASSWORD_FILE", path)

		require.ErrorIs(t, applyCNPGPassword(cnpgConfig("")), ErrCNPGPasswordEmpty)
	})

	t.Run("other drivers untouched", func(t *testing.T) {
		t.Setenv("CNPG_PASSWORD_FILE", "")

		cfg := &models.PresenceConfig{Store: models.StoreConfig{Driver: models.StoreDriverSQLite}}
		require.NoError(t, applyCNPGPassword(cfg))
	})
}
