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
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carverauto/presence/pkg/logger"
	"github.com/carverauto/presence/pkg/models"
)

// pgxQuerier is the subset of *pgxpool.Pool the sighting store uses.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CNPGSightingStore keeps the event log in a Postgres table.
type CNPGSightingStore struct {
	db     pgxQuerier
	pool   *pgxpool.Pool
	table  string
	logger logger.Logger
}

// NewCNPGSightingStore takes ownership of pool and creates the table if needed.
func NewCNPGSightingStore(ctx context.Context, pool *pgxpool.Pool, table string, log logger.Logger) (*CNPGSightingStore, error) {
	return newCNPGSightingStore(ctx, pool, pool, table, log)
}

func newCNPGSightingStore(
	ctx context.Context, q pgxQuerier, pool *pgxpool.Pool, table string, log logger.Logger,
) (*CNPGSightingStore, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	s := &CNPGSightingStore{db: q, pool: pool, table: table, logger: log}

	if _, err := s.db.Exec(ctx, s.schemaSQL()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToInit, err)
	}

	return s, nil
}

func (s *CNPGSightingStore) schemaSQL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		target TEXT,
		mac TEXT,
		rssi INTEGER,
		epoch BIGINT NOT NULL,
		human_time TEXT NOT NULL,
		message TEXT NOT NULL
	)`, s.table)
}

func (s *CNPGSightingStore) Write(ctx context.Context, event models.SightingEvent) error {
	query := fmt.Sprintf(`INSERT INTO %s (target, mac, rssi, epoch, human_time, message)
		VALUES ($1, $2, $3, $4, $5, $6)`, s.table)

	if _, err := s.db.Exec(ctx, query, insertArgs(&event)...); err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToInsert, err)
	}

	return nil
}

func (s *CNPGSightingStore) LastEvent(ctx context.Context) (models.SightingEvent, bool, error) {
	query := fmt.Sprintf(`SELECT target, mac, rssi, epoch, human_time, message
		FROM %s ORDER BY id DESC LIMIT 1`, s.table)

	var row sightingRow

	if err := s.db.QueryRow(ctx, query).Scan(row.scanDest()...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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

func (s *CNPGSightingStore) Recent(ctx context.Context, limit int) ([]models.SightingEvent, error) {
	query := fmt.Sprintf(`SELECT target, mac, rssi, epoch, human_time, message
		FROM %s ORDER BY id DESC`, s.table)

	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToQuery, err)
	}
	defer rows.Close()

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

func (s *CNPGSightingStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}

	return nil
}
