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

package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/presence/pkg/logger"
	"github.com/carverauto/presence/pkg/models"
)

func TestEnsureSubjectList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		subjects []string
		subject  string
		want     []string
	}{
		{
			name:     "appends missing subject",
			subjects: []string{"events.other"},
			subject:  models.PresenceAliveSubject,
			want:     []string{"events.other", models.PresenceAliveSubject},
		},
		{
			name:     "single token wildcard covers subject",
			subjects: []string{"events.presence.*"},
			subject:  models.PresenceDeadSubject,
			want:     []string{"events.presence.*"},
		},
		{
			name:     "tail wildcard covers subject",
			subjects: []string{"events.>"},
			subject:  models.PresenceAliveSubject,
			want:     []string{"events.>"},
		},
		{
			name:     "exact match is kept once",
			subjects: []string{models.PresenceDeadSubject},
			subject:  models.PresenceDeadSubject,
			want:     []string{models.PresenceDeadSubject},
		},
		{
			name:    "empty list",
			subject: models.PresenceAliveSubject,
			want:    []string{models.PresenceAliveSubject},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ensureSubjectList(tt.subjects, tt.subject))
		})
	}
}

func TestMatchesSubject(t *testing.T) {
	t.Parallel()

	assert.True(t, matchesSubject("a.b.c", "a.b.c"))
	assert.True(t, matchesSubject("a.*.c", "a.b.c"))
	assert.True(t, matchesSubject("a.>", "a.b.c"))
	assert.False(t, matchesSubject("a.>", "a"))
	assert.False(t, matchesSubject("a.*", "a.b.c"))
	assert.False(t, matchesSubject("a.b.c", "a.b"))
	assert.False(t, matchesSubject("a.b.d", "a.b.c"))
}

func TestIsStreamMissingErr(t *testing.T) {
	t.Parallel()

	assert.True(t, isStreamMissingErr(jetstream.ErrStreamNotFound))
	assert.True(t, isStreamMissingErr(nats.ErrNoResponders))
	assert.False(t, isStreamMissingErr(errors.New("boom")))
	assert.False(t, isStreamMissingErr(nil))
}

func TestTLSConfigRequiresMTLS(t *testing.T) {
	t.Parallel()

	_, err := TLSConfig(nil)
	require.ErrorIs(t, err, ErrMTLSRequired)

	_, err = TLSConfig(&models.SecurityConfig{Mode: "none"})
	require.ErrorIs(t, err, ErrMTLSRequired)

	_, err = TLSConfig(&models.SecurityConfig{
		Mode:    "mtls",
		CertDir: t.TempDir(),
		TLS:     models.TLSConfig{CertFile: "client.pem", KeyFile: "client-key.pem", CAFile: "root.pem"},
	})
	require.Error(t, err)
}

func TestInCertDir(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/certs/a.pem", inCertDir("/certs", "a.pem"))
	assert.Equal(t, "/abs/a.pem", inCertDir("/certs", "/abs/a.pem"))
	assert.Equal(t, "a.pem", inCertDir("", "a.pem"))
	assert.Empty(t, inCertDir("/certs", ""))
}

func TestBuildCloudEvent(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	p := &EventPublisher{logger: logger.NewTestLogger(), now: func() time.Time { return fixed }}

	mac, err := net.ParseMAC("aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)

	rssi := -51
	alive := models.NewSightingEvent(mac, &rssi, 1000, time.UTC, models.MessageAlive)

	ce, err := p.buildCloudEvent(&alive)
	require.NoError(t, err)
	assert.Equal(t, "1.0", ce.SpecVersion)
	assert.NotEmpty(t, ce.ID)
	assert.Equal(t, models.PresenceAliveSubject, ce.Subject)
	assert.Equal(t, models.PresenceEventTypeAlive, ce.Type)
	assert.Equal(t, time.Unix(1000, 0).UTC(), *ce.Time)

	data, ok := ce.Data.(models.PresenceEventData)
	require.True(t, ok)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", data.MAC)
	assert.Equal(t, -51, *data.RSSI)
	assert.Equal(t, fixed, data.Timestamp)

	dead := models.NewSightingEvent(mac, nil, 1070, time.UTC, models.MessageDead)
	ce, err = p.buildCloudEvent(&dead)
	require.NoError(t, err)
	assert.Equal(t, models.PresenceDeadSubject, ce.Subject)
	assert.Equal(t, models.PresenceEventTypeDead, ce.Type)

	dummy := models.NewSightingEvent(nil, nil, 1000, time.UTC, models.MessageDummy)
	_, err = p.buildCloudEvent(&dummy)
	require.ErrorIs(t, err, errNotTransition)

	bogus := models.SightingEvent{Message: "Zombie"}
	_, err = p.buildCloudEvent(&bogus)
	require.ErrorIs(t, err, models.ErrUnknownSightingMessage)
}

func runJetStreamServer(t *testing.T) *server.Server {
	t.Helper()

	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	}

	srv, err := server.NewServer(opts)
	require.NoError(t, err)

	go srv.Start()

	if !srv.ReadyForConnections(10 * time.Second) {
		t.Fatal("nats server not ready")
	}

	require.Eventually(t, srv.JetStreamEnabled, 5*time.Second, 50*time.Millisecond)

	t.Cleanup(srv.Shutdown)

	return srv
}

func TestEventPublisherPublishesTransitions(t *testing.T) {
	srv := runJetStreamServer(t)
	log := logger.NewTestLogger()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	nc, err := ConnectWithSecurity(ctx, srv.ClientURL(), nil, log)
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	pub, err := CreateEventPublisherWithDomain(ctx, nc, "", "presence", []string{"events.other"}, log)
	require.NoError(t, err)

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	stream, err := js.Stream(ctx, "presence")
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{"events.other", models.PresenceAliveSubject, models.PresenceDeadSubject},
		stream.CachedInfo().Config.Subjects)

	mac, err := net.ParseMAC("aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)

	require.NoError(t, pub.Notify(ctx, models.NewSightingEvent(nil, nil, 1000, time.UTC, models.MessageDummy)))
	require.NoError(t, pub.Notify(ctx, models.NewSightingEvent(mac, nil, 1070, time.UTC, models.MessageDead)))

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{FilterSubject: models.PresenceDeadSubject})
	require.NoError(t, err)

	msg, err := cons.Next(jetstream.FetchMaxWait(5 * time.Second))
	require.NoError(t, err)

	var got struct {
		Type string                   `json:"type"`
		Data models.PresenceEventData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg.Data(), &got))
	assert.Equal(t, models.PresenceEventTypeDead, got.Type)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", got.Data.MAC)
	assert.Equal(t, int64(1070), got.Data.Epoch)
	assert.Equal(t, models.MessageDead, got.Data.State)
	assert.Nil(t, got.Data.RSSI)

	info, err := stream.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.State.Msgs)
}

func TestCreateEventPublisherWidensExistingStream(t *testing.T) {
	srv := runJetStreamServer(t)
	log := logger.NewTestLogger()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	nc, err := ConnectWithSecurity(ctx, srv.ClientURL(), nil, log)
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{Name: "presence", Subjects: []string{"legacy.events"}})
	require.NoError(t, err)

	_, err = CreateEventPublisherWithDomain(ctx, nc, "", "presence", nil, log)
	require.NoError(t, err)

	stream, err := js.Stream(ctx, "presence")
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{"legacy.events", models.PresenceAliveSubject, models.PresenceDeadSubject},
		stream.CachedInfo().Config.Subjects)
}
