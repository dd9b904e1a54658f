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

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/carverauto/presence/pkg/logger"
	"github.com/carverauto/presence/pkg/models"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

const (
	sqliteDriverName         = "sqlite"
	defaultSQLiteBusyTimeout = 5 * time.Second
)

// SQLiteStore is the single file event log. Reads order on rowid, which the
// id column aliases, so tables created without an id column also work.
type SQLiteStore struct {
	db     *sql.DB
	table  string
	logger logger.Logger
}

func NewSQLiteStore(ctx context.Context, cfg *models.SQLiteDatabase, table string, log logger.Logger) (*SQLiteStore, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	conn, err := sql.Open(sqliteDriverName, cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedOpenDB, err)
	}

	// one writer; also keeps per-connection pragmas on the only connection
	conn.SetMaxOpenConns(1)

	busy := time.Duration(cfg.BusyTimeout)
	if busy <= 0 {
		busy = defaultSQLiteBusyTimeout
	}

	if _, err := conn.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds())); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %w", ErrFailedOpenDB, err)
	}

	s := &SQLiteStore{db: conn, table: table, logger: log}

	if err := s.ensureSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	log.Info().Str("path", cfg.Path).Str("table", table).Msg("Opened SQLite sighting store")

	return s, nil
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		target TEXT,
		mac TEXT,
		rssi INTEGER,
		epoch INTEGER NOT NULL,
		human_time TEXT NOT NULL,
		message TEXT NOT NULL
	)`, s.table)

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToInit, err)
	}

	return nil
}

func (s *SQLiteStore) Write(ctx context.Context, event models.SightingEvent) error {
	query := fmt.Sprintf(`INSERT INTO %s (target, mac, rssi, epoch, human_time, message)
		VALUES (?, ?, ?, ?, ?, ?)`, s.table)

	if _, err := s.db.ExecContext(ctx, query, insertArgs(&event)...); err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToInsert, err)
	}

	return nil
}

func (s *SQLiteStore) LastEvent(ctx context.Context) (models.SightingEvent, bool, error) {
	query := fmt.Sprintf(`SELECT target, mac, rssi, epoch, human_time, message
		FROM %s ORDER BY rowid DESC LIMIT 1`, s.table)

	var row sightingRow

	if err := s.db.QueryRowContext(ctx, query).Scan(row.scanDest()...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.SightingEvent{}, false, nil
		}

		return models.SightingEvent{}, false, fmt.Errorf("%w: %w", ErrFailedToQuery, err)
	}

	event, err := row.event()
	if err != nil {
		return models.SightingEvent{}, false, fmt.Errorf("%w: %w", ErrFailedToScan, err)
	}

	return event, true, nil
}

func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]models.SightingEvent, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	query := fmt.Sprintf(`SELECT target, mac, rssi, epoch, human_time, message
		FROM %s ORDER BY rowid DESC LIMIT ?`, s.table)

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToQuery, err)
	}
	defer func() { _ = rows.Close() }()

	var events []models.SightingEvent

	for rows.Next() {
		var row sightingRow
		if err := rows.Scan(row.scanDest()...); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFailedToScan, err)
		}

		event, err := row.event()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFailedToScan, err)
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToQuery, err)
	}

	reverse(events)

	return events, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
