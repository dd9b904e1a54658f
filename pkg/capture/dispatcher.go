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

package capture

import (
	"context"
	"errors"

	"github.com/google/gopacket"

	"github.com/carverauto/presence/pkg/frame"
	"github.com/carverauto/presence/pkg/logger"
)

// FrameHandler consumes classified frames. presence.Tracker implements it.
type FrameHandler interface {
	ProcessFrame(ctx context.Context, f frame.Frame) error
}

// Dispatcher feeds packets through the classifier into a FrameHandler. Each
// frame is handled to completion, debounce pause included, before the next
// packet is read.
type Dispatcher struct {
	handler FrameHandler
	logger  logger.Logger
}

// Stats summarizes one Run.
type Stats struct {
	Packets   uint64
	Accepted  uint64
	Discarded uint64
}

// NewDispatcher creates a dispatcher delivering to handler.
func NewDispatcher(handler FrameHandler, log logger.Logger) *Dispatcher {
	return &Dispatcher{handler: handler, logger: log}
}

// Run consumes packets until the channel closes or ctx is done. A closed
// channel returns nil; cancellation returns ctx.Err().
func (d *Dispatcher) Run(ctx context.Context, packets <-chan gopacket.Packet) (Stats, error) {
	var stats Stats

	for {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case pkt, ok := <-packets:
			if !ok {
				d.logger.Info().
					Uint64("packets", stats.Packets).
					Uint64("accepted", stats.Accepted).
					Msg("Packet source exhausted")

				return stats, nil
			}

			stats.Packets++

			f, ok := frame.Classify(pkt)
			if !ok {
				stats.Discarded++
				continue
			}

			stats.Accepted++

			if err := d.handler.ProcessFrame(ctx, f); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return stats, err
				}

				d.logger.Error().Err(err).Str("mac", f.Source.String()).Msg("Frame handling failed")
			}
		}
	}
}
