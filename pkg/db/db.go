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

// Package db persists sighting events.
//
// Every backend stores the same append-only layout:
//
//	id, target, mac, rssi, epoch, human_time, message
//
// where id is monotonic and defines which row is "last".
package db

import (
	"context"
	"fmt"

	"github.com/carverauto/presence/pkg/logger"
	"github.com/carverauto/presence/pkg/models"
)

// SightingStore is the event log used by the tracker plus the read side
// used for inspection.
type SightingStore interface {
	Write(ctx context.Context, event models.SightingEvent) error
	LastEvent(ctx context.Context) (models.SightingEvent, bool, error)
	// Recent returns up to limit of the newest events, oldest first.
	Recent(ctx context.Context, limit int) ([]models.SightingEvent, error)
	Close() error
}

// Open builds the store selected by cfg.Driver and makes sure its table exists.
func Open(ctx context.Context, cfg *models.StoreConfig, log logger.Logger) (SightingStore, error) {
	table := cfg.Table
	if table == "" {
		table = models.DefaultSightingTable
	}

	switch cfg.Driver {
	case models.StoreDriverMemory:
		return NewMemoryStore(), nil
	case models.StoreDriverSQLite:
		if cfg.SQLite == nil {
			return nil, fmt.Errorf("%w: sqlite", ErrStoreConfig)
		}

		return NewSQLiteStore(ctx, cfg.SQLite, table, log)
	case models.StoreDriverCNPG:
		if cfg.CNPG == nil {
			return nil, fmt.Errorf("%w: cnpg", ErrStoreConfig)
		}

		pool, err := NewCNPGPool(ctx, cfg.CNPG, log)
		if err != nil {
			return nil, err
		}

		store, err := NewCNPGSightingStore(ctx, pool, table, log)
		if err != nil {
			pool.Close()
			return nil, err
		}

		return store, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

func checkTable(table string) error {
	if !models.IsPlainIdentifier(table) {
		return fmt.Errorf("%w: %q", ErrInvalidTableName, table)
	}

	return nil
}
