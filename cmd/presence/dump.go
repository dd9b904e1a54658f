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
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/carverauto/presence/pkg/db"
)

// dumpEvents writes the newest n events, oldest first, one JSON object per
// line. n < 0 writes the whole log.
func dumpEvents(ctx context.Context, store db.SightingStore, n int, w io.Writer) error {
	limit := n
	if limit < 0 {
		limit = 0
	}

	events, err := store.Recent(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to read sightings: %w", err)
	}

	enc := json.NewEncoder(w)

	for i := range events {
		if err := enc.Encode(events[i]); err != nil {
			return err
		}
	}

	return nil
}
