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

// Package natsutil publishes presence transitions to NATS JetStream as
// CloudEvents.
package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/presence/pkg/logger"
	"github.com/carverauto/presence/pkg/models"
)

var errNotTransition = errors.New("only Alive and Dead events are published")

// EventPublisher publishes sighting transitions to a JetStream stream. It
// satisfies presence.Notifier.
type EventPublisher struct {
	js     jetstream.JetStream
	stream string
	logger logger.Logger
	now    func() time.Time
}

// NewEventPublisher creates a new EventPublisher for the specified stream.
func NewEventPublisher(js jetstream.JetStream, streamName string, log logger.Logger) *EventPublisher {
	return &EventPublisher{
		js:     js,
		stream: streamName,
		logger: log,
		now:    time.Now,
	}
}

// Notify publishes Alive and Dead events. The bootstrap sentinel is not a
// transition and is skipped.
func (p *EventPublisher) Notify(ctx context.Context, event models.SightingEvent) error {
	cloudEvent, err := p.buildCloudEvent(&event)
	if errors.Is(err, errNotTransition) {
		return nil
	}

	if err != nil {
		return err
	}

	payload, err := json.Marshal(cloudEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal presence event: %w", err)
	}

	ack, err := p.js.Publish(ctx, cloudEvent.Subject, payload, jetstream.WithMsgID(cloudEvent.ID))
	if err != nil {
		return fmt.Errorf("failed to publish presence event: %w", err)
	}

	p.logger.Debug().
		Str("event_id", cloudEvent.ID).
		Str("subject", cloudEvent.Subject).
		Uint64("seq", ack.Sequence).
		Msg("Published presence event")

	return nil
}

func (p *EventPublisher) buildCloudEvent(event *models.SightingEvent) (*models.CloudEvent, error) {
	var subject, eventType string

	switch event.Message {
	case models.MessageAlive:
		subject, eventType = models.PresenceAliveSubject, models.PresenceEventTypeAlive
	case models.MessageDead:
		subject, eventType = models.PresenceDeadSubject, models.PresenceEventTypeDead
	case models.MessageDummy:
		return nil, errNotTransition
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownSightingMessage, event.Message)
	}

	published := p.now().UTC()
	observed := event.Time()

	return &models.CloudEvent{
		SpecVersion:     "1.0",
		ID:              uuid.New().String(),
		Source:          models.PresenceEventSource,
		Type:            eventType,
		DataContentType: "application/json",
		Subject:         subject,
		Time:            &observed,
		Data: models.PresenceEventData{
			MAC:       event.MACString(),
			RSSI:      event.RSSI,
			Epoch:     event.Epoch,
			HumanTime: event.HumanTime,
			State:     event.Message,
			Timestamp: published,
		},
	}, nil
}

// ConnectWithSecurity creates a NATS connection with security configuration.
func ConnectWithSecurity(_ context.Context, natsURL string, security *models.SecurityConfig, log logger.Logger, extraOpts ...nats.Option) (*nats.Conn, error) {
	opts := []nats.Option{nats.Name("presence")}

	if security != nil {
		tlsConf, err := TLSConfig(security)
		if err != nil {
			return nil, fmt.Errorf("failed to build NATS TLS config: %w", err)
		}

		opts = append(opts, nats.Secure(tlsConf))
	}

	opts = append(opts,
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)

	opts = append(opts, extraOpts...)

	nc, err := nats.Connect(natsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Info().Str("url", nc.ConnectedUrl()).Msg("Connected to NATS")

	return nc, nil
}

// CreateEventPublisherWithDomain binds a publisher to streamName, creating the
// stream or widening its subjects so both presence subjects are captured.
func CreateEventPublisherWithDomain(
	ctx context.Context, nc *nats.Conn, domain, streamName string, subjects []string, log logger.Logger,
) (*EventPublisher, error) {
	var (
		js  jetstream.JetStream
		err error
	)

	if domain != "" {
		js, err = jetstream.NewWithDomain(nc, domain)
	} else {
		js, err = jetstream.New(nc)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if err := ensureStream(ctx, js, streamName, subjects, log); err != nil {
		return nil, err
	}

	return NewEventPublisher(js, streamName, log), nil
}

func ensureStream(ctx context.Context, js jetstream.JetStream, streamName string, subjects []string, log logger.Logger) error {
	wanted := append([]string(nil), subjects...)
	for _, s := range []string{models.PresenceAliveSubject, models.PresenceDeadSubject} {
		wanted = ensureSubjectList(wanted, s)
	}

	stream, err := js.Stream(ctx, streamName)

	switch {
	case err == nil:
		current := stream.CachedInfo().Config
		merged := append([]string(nil), current.Subjects...)

		for _, s := range wanted {
			merged = ensureSubjectList(merged, s)
		}

		if len(merged) == len(current.Subjects) {
			return nil
		}

		current.Subjects = merged
		if _, err := js.UpdateStream(ctx, current); err != nil {
			return fmt.Errorf("failed to update stream %s subjects: %w", streamName, err)
		}

		log.Info().Str("stream", streamName).Strs("subjects", merged).Msg("Updated NATS JetStream stream subjects")

		return nil
	case isStreamMissingErr(err):
		if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{Name: streamName, Subjects: wanted}); err != nil {
			return fmt.Errorf("failed to create stream %s: %w", streamName, err)
		}

		log.Info().Str("stream", streamName).Strs("subjects", wanted).Msg("Created NATS JetStream stream")

		return nil
	default:
		return fmt.Errorf("failed to look up stream %s: %w", streamName, err)
	}
}

// ensureSubjectList appends subject unless an existing pattern already covers it.
func ensureSubjectList(subjects []string, subject string) []string {
	for _, pattern := range subjects {
		if matchesSubject(pattern, subject) {
			return subjects
		}
	}

	return append(subjects, subject)
}

// matchesSubject applies NATS wildcard rules: "*" matches one token, ">" the rest.
func matchesSubject(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")

	for i, tok := range pt {
		if tok == ">" {
			return i < len(st)
		}

		if i >= len(st) {
			return false
		}

		if tok != "*" && tok != st[i] {
			return false
		}
	}

	return len(pt) == len(st)
}

func isStreamMissingErr(err error) bool {
	return errors.Is(err, jetstream.ErrStreamNotFound) ||
		errors.Is(err, jetstream.ErrNoStreamResponse) ||
		errors.Is(err, nats.ErrStreamNotFound) ||
		errors.Is(err, nats.ErrNoStreamResponse) ||
		errors.Is(err, nats.ErrNoResponders)
}
