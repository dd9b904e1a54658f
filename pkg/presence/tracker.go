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

// Package presence decides, frame by frame, whether watched stations are
// present or have gone quiet, and records the transitions.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/carverauto/presence/pkg/frame"
	"github.com/carverauto/presence/pkg/logger"
	"github.com/carverauto/presence/pkg/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/carverauto/presence/pkg/presence"

// Config is the tracker's static configuration.
type Config struct {
	Targets        TargetSet
	AlertThreshold time.Duration
	Debounce       time.Duration
	DeadRSSIPolicy models.DeadRSSIPolicy
	// Location renders HumanTime; nil means time.Local.
	Location *time.Location
}

// ConfigFromModel converts a validated service configuration.
func ConfigFromModel(cfg *models.PresenceConfig) (Config, error) {
	targets, err := NewTargetSet(cfg.Targets)
	if err != nil {
		return Config{}, err
	}

	return Config{
		Targets:        targets,
		AlertThreshold: time.Duration(cfg.AlertThreshold),
		Debounce:       time.Duration(cfg.Debounce),
		DeadRSSIPolicy: cfg.DeadRSSIPolicy,
		Location:       cfg.Location(),
	}, nil
}

// Option customises a Tracker.
type Option func(*Tracker)

// WithClock replaces the wall clock.
func WithClock(clock Clock) Option {
	return func(t *Tracker) {
		t.clock = clock
	}
}

// WithNotifier forwards every stored Alive and Dead event to n.
func WithNotifier(n Notifier) Option {
	return func(t *Tracker) {
		t.notifier = n
	}
}

// Tracker holds no per-target state. Every decision is made against the last
// event in the store, so other writers to the same store are honoured.
type Tracker struct {
	cfg      Config
	store    EventStore
	clock    Clock
	notifier Notifier
	logger   logger.Logger
	tracer   trace.Tracer
}

func NewTracker(cfg Config, store EventStore, log logger.Logger, opts ...Option) (*Tracker, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	if cfg.Targets.Len() == 0 {
		return nil, ErrNoTargets
	}

	if cfg.AlertThreshold <= 0 {
		return nil, ErrInvalidThreshold
	}

	if cfg.Debounce == 0 {
		cfg.Debounce = time.Duration(models.DefaultDebounce)
	}

	if cfg.DeadRSSIPolicy == "" {
		cfg.DeadRSSIPolicy = models.DeadRSSIAbsent
	}

	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	t := &Tracker{
		cfg:    cfg,
		store:  store,
		clock:  NewRealClock(),
		logger: log,
		tracer: otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t, nil
}

// ProcessFrame runs the presence decision for one classified frame:
//
//  1. read the last stored event, writing a Dummy sentinel when the store is empty;
//  2. if the source is a target, write Alive and pause for the debounce interval;
//  3. if the event read in step 1 names an address and the alert threshold has
//     elapsed since it, write Dead for that address and pause again.
//
// The three steps are not atomic. Store failures are logged and never abort
// the frame. The only error returned is ctx's, when it ends during a pause.
func (t *Tracker) ProcessFrame(ctx context.Context, f frame.Frame) error {
	isTarget := t.cfg.Targets.Contains(f.Source)

	ctx, span := t.tracer.Start(ctx, "presence.ProcessFrame", trace.WithAttributes(
		attribute.String("source", f.Source.String()),
		attribute.String("subtype", f.Subtype.String()),
		attribute.Bool("target", isTarget),
	))
	defer span.End()

	recordFrame(ctx, f.Subtype.String(), isTarget)

	now := t.clock.Now().Unix()

	last, haveLast := t.lastSeen(ctx, span, now)

	if isTarget {
		alive := models.NewSightingEvent(f.Source, f.RSSI, now, t.cfg.Location, models.MessageAlive)
		t.emit(ctx, span, &alive)

		if err := t.pause(ctx); err != nil {
			return err
		}
	}

	if !haveLast || !last.HasMAC() || !t.thresholdExceeded(last.Epoch, now) {
		return nil
	}

	t.logger.Warn().
		Str("last_mac", last.MACString()).
		Int64("last_epoch", last.Epoch).
		Int64("epoch", now).
		Msg("alert threshold exceeded")

	if err := t.emitDead(ctx, span, &last, f.RSSI, now); err != nil {
		t.logger.Error().Err(err).Str("last_mac", last.MACString()).Msg("Failed to record dead event")
		span.RecordError(err)

		return nil
	}

	return t.pause(ctx)
}

// lastSeen returns the event the dead-check compares against. A read error
// skips the dead-check for this frame and never bootstraps.
func (t *Tracker) lastSeen(ctx context.Context, span trace.Span, now int64) (models.SightingEvent, bool) {
	last, found, err := t.store.LastEvent(ctx)
	if err != nil {
		recordStoreError(ctx, "read")
		span.RecordError(err)
		t.logger.Error().Err(err).Msg("Failed to read last event, skipping dead check")

		return models.SightingEvent{}, false
	}

	if found {
		return last, true
	}

	dummy := models.NewSightingEvent(nil, nil, now, t.cfg.Location, models.MessageDummy)

	if err := t.store.Write(ctx, dummy); err != nil {
		recordStoreError(ctx, "write")
		span.RecordError(err)
		t.logger.Error().Err(err).Msg("Failed to write bootstrap record")
	} else {
		recordEvent(ctx, models.MessageDummy)
		t.logger.Debug().Int64("epoch", now).Msg("Bootstrapped empty event store")
	}

	return dummy, true
}

func (t *Tracker) thresholdExceeded(lastEpoch, now int64) bool {
	deadline := time.Unix(lastEpoch, 0).Add(t.cfg.AlertThreshold)

	return !time.Unix(now, 0).Before(deadline)
}

// emitDead records and publishes the Dead event for last. A panic
// from the store or notifier is returned as an error so the frame loop keeps
// running; the debounce pause is skipped in that case.
func (t *Tracker) emitDead(ctx context.Context, span trace.Span, last *models.SightingEvent, trigger *int, now int64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errDeadRecordPanic, r)
		}
	}()

	var rssi *int
	if t.cfg.DeadRSSIPolicy == models.DeadRSSITrigger {
		rssi = trigger
	}

	dead := models.NewSightingEvent(last.MAC, rssi, now, t.cfg.Location, models.MessageDead)
	t.emit(ctx, span, &dead)

	return nil
}

func (t *Tracker) emit(ctx context.Context, span trace.Span, event *models.SightingEvent) {
	if err := t.store.Write(ctx, *event); err != nil {
		recordStoreError(ctx, "write")
		span.RecordError(err)
		span.SetStatus(codes.Error, "store write failed")
		t.logger.Error().
			Err(err).
			Str("mac", event.MACString()).
			Str("message", string(event.Message)).
			Msg("Failed to write sighting event")

		return
	}

	recordEvent(ctx, event.Message)

	t.logger.Info().
		Str("mac", event.MACString()).
		Interface("rssi", event.RSSI).
		Int64("epoch", event.Epoch).
		Str("human_time", event.HumanTime).
		Str("message", string(event.Message)).
		Msg(string(event.Message))

	if t.notifier == nil {
		return
	}

	if err := t.notifier.Notify(ctx, *event); err != nil {
		t.logger.Warn().Err(err).Str("mac", event.MACString()).Msg("Failed to publish sighting event")
	}
}

func (t *Tracker) pause(ctx context.Context) error {
	if t.cfg.Debounce <= 0 {
		return nil
	}

	return t.clock.Sleep(ctx, t.cfg.Debounce)
}
