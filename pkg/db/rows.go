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
	"fmt"
	"net"

	"github.com/carverauto/presence/pkg/models"
)

// sightingRow is the column level shape shared by the SQL backends. Nullable
// columns scan into pointers with both pgx and database/sql.
type sightingRow struct {
	Target    *string
	MAC       *string
	RSSI      *int64
	Epoch     int64
	HumanTime string
	Message   string
}

func (r *sightingRow) scanDest() []any {
	return []any{&r.Target, &r.MAC, &r.RSSI, &r.Epoch, &r.HumanTime, &r.Message}
}

func (r *sightingRow) event() (models.SightingEvent, error) {
	msg, err := models.ParseSightingMessage(r.Message)
	if err != nil {
		return models.SightingEvent{}, err
	}

	event := models.SightingEvent{
		Target:    r.Target,
		Epoch:     r.Epoch,
		HumanTime: r.HumanTime,
		Message:   msg,
	}

	if r.MAC != nil && *r.MAC != "" {
		mac, err := net.ParseMAC(*r.MAC)
		if err != nil {
			return models.SightingEvent{}, fmt.Errorf("%w %q: %w", ErrInvalidMAC, *r.MAC, err)
		}

		event.MAC = mac
	}

	if r.RSSI != nil {
		rssi := int(*r.RSSI)
		event.RSSI = &rssi
	}

	return event, nil
}

// insertArgs returns the values for target, mac, rssi, epoch, human_time and
// message, with untyped nils for NULL.
func insertArgs(e *models.SightingEvent) []any {
	var target, mac, rssi any

	if e.Target != nil {
		target = *e.Target
	}

	if e.HasMAC() {
		mac = e.MAC.String()
	}

	if e.RSSI != nil {
		rssi = int64(*e.RSSI)
	}

	return []any{target, mac, rssi, e.Epoch, e.HumanTime, string(e.Message)}
}

// reverse flips newest-first query results into write order.
func reverse(events []models.SightingEvent) {
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
}
