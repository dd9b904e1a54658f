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

package presence

import (
	"context"
	"sync"

	"github.com/carverauto/presence/pkg/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/carverauto/presence/pkg/presence"

	metricFramesTotal = "presence_frames_total"
	metricEventsTotal = "presence_events_written_total"
	metricStoreErrors = "presence_store_errors_total"
)

var (
	//nolint:gochecknoglobals // instruments are shared across the process
	meterOnce sync.Once
	//nolint:gochecknoglobals // instruments are shared across the process
	framesCounter metric.Int64Counter
	//nolint:gochecknoglobals // instruments are shared across the process
	eventsCounter metric.Int64Counter
	//nolint:gochecknoglobals // instruments are shared across the process
	storeErrorCounter metric.Int64Counter
)

func initMeter() {
	meter := otel.Meter(meterName)

	frames, err := meter.Int64Counter(
		metricFramesTotal,
		metric.WithDescription("Classified station frames handed to the tracker"),
	)
	if err != nil {
		otel.Handle(err)
	}
	framesCounter = frames

	events, err := meter.Int64Counter(
		metricEventsTotal,
		metric.WithDescription("Sighting events written to the store"),
	)
	if err != nil {
		otel.Handle(err)
	}
	eventsCounter = events

	storeErrors, err := meter.Int64Counter(
		metricStoreErrors,
		metric.WithDescription("Failed event store reads and writes"),
	)
	if err != nil {
		otel.Handle(err)
	}
	storeErrorCounter = storeErrors
}

func recordFrame(ctx context.Context, subtype string, target bool) {
	meterOnce.Do(initMeter)
	if framesCounter == nil {
		return
	}

	framesCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("subtype", subtype),
		attribute.Bool("target", target),
	))
}

func recordEvent(ctx context.Context, msg models.SightingMessage) {
	meterOnce.Do(initMeter)
	if eventsCounter == nil {
		return
	}

	eventsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("message", string(msg))))
}

// recordStoreError counts failures by operation ("read" or "write").
func recordStoreError(ctx context.Context, op string) {
	meterOnce.Do(initMeter)
	if storeErrorCounter == nil {
		return
	}

	storeErrorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
}
