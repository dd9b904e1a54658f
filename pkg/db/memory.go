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
	"net"
	"sync"

	"github.com/carverauto/presence/pkg/models"
)

// MemoryStore keeps the event log in process. Nothing survives a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	events []models.SightingEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Write(_ context.Context, event models.SightingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, cloneEvent(event))

	return nil
}

func (s *MemoryStore) LastEvent(_ context.Context) (models.SightingEvent, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.events) == 0 {
		return models.SightingEvent{}, false, nil
	}

	return cloneEvent(s.events[len(s.events)-1]), true, nil
}

func (s *MemoryStore) Recent(_ context.Context, limit int) ([]models.SightingEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.events) {
		limit = len(s.events)
	}

	out := make([]models.SightingEvent, 0, limit)
	for _, e := range s.events[len(s.events)-limit:] {
		out = append(out, cloneEvent(e))
	}

	return out, nil
}

func (*MemoryStore) Close() error {
	return nil
}

// cloneEvent detaches the pointer and slice fields so callers cannot mutate
// stored history.
func cloneEvent(e models.SightingEvent) models.SightingEvent {
	if e.Target != nil {
		target := *e.Target
		e.Target = &target
	}

	if e.MAC != nil {
		e.MAC = append(net.HardwareAddr(nil), e.MAC...)
	}

	if e.RSSI != nil {
		rssi := *e.RSSI
		e.RSSI = &rssi
	}

	return e
}
