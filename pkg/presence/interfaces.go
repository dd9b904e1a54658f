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

//go:generate mockgen -destination=mock_presence.go -package=presence github.com/carverauto/presence/pkg/presence EventStore,Clock,Notifier

package presence

import (
	"context"
	"time"

	"github.com/carverauto/presence/pkg/models"
)

// EventStore is the append-only sighting log the tracker reads and writes.
type EventStore interface {
	// Write appends one event.
	Write(ctx context.Context, event models.SightingEvent) error
	// LastEvent returns the most recently written event, or false when the
	// log is empty.
	LastEvent(ctx context.Context) (models.SightingEvent, bool, error)
}

// Clock supplies the current time and the debounce pause.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// Notifier receives every Alive and Dead event after it is stored.
type Notifier interface {
	Notify(ctx context.Context, event models.SightingEvent) error
}
