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
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/carverauto/presence/pkg/frame"
	"github.com/carverauto/presence/pkg/logger"
	"github.com/carverauto/presence/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	targetMAC   = "AA:BB:CC:DD:EE:FF"
	otherTarget = "11:22:33:44:55:66"
	strangerMAC = "de:ad:be:ef:00:01"
)

var errStoreDown = errors.New("store unavailable")

func mustMAC(t *testing.T, s string) net.HardwareAddr {
	t.Helper()

	mac, err := net.ParseMAC(s)
	require.NoError(t, err)

	return mac
}

func intPtr(v int) *int { return &v }

// sliceStore is an in-memory EventStore that keeps every write in order.
type sliceStore struct {
	mu     sync.Mutex
	events []models.SightingEvent
}

func (s *sliceStore) Write(_ context.Context, event models.SightingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)

	return nil
}

func (s *sliceStore) LastEvent(context.Context) (models.SightingEvent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.events) == 0 {
		return models.SightingEvent{}, false, nil
	}

	return s.events[len(s.events)-1], true, nil
}

func (s *sliceStore) messages() []models.SightingMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.SightingMessage, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Message)
	}

	return out
}

// stepClock returns a settable time and records pauses without blocking.
type stepClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newStepClock(epoch int64) *stepClock {
	return &stepClock{now: time.Unix(epoch, 0)}
}

func (c *stepClock) set(epoch int64) { c.now = time.Unix(epoch, 0) }

func (c *stepClock) Now() time.Time { return c.now }

func (c *stepClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)

	return nil
}

// eventMatcher matches a SightingEvent by message and, when set, address.
type eventMatcher struct {
	msg models.SightingMessage
	mac string
}

func eventMatching(msg models.SightingMessage, mac string) gomock.Matcher {
	return eventMatcher{msg: msg, mac: mac}
}

func (m eventMatcher) Matches(x any) bool {
	e, ok := x.(models.SightingEvent)
	if !ok || e.Message != m.msg {
		return false
	}

	if m.msg == models.MessageDummy {
		return e.MAC == nil
	}

	return m.mac == "" || e.MACString() == m.mac
}

func (m eventMatcher) String() string {
	return "event " + string(m.msg) + " " + m.mac
}

func newTestTracker(t *testing.T, store EventStore, clock Clock, policy models.DeadRSSIPolicy, opts ...Option) *Tracker {
	t.Helper()

	targets, err := NewTargetSet([]string{targetMAC, otherTarget})
	require.NoError(t, err)

	cfg := Config{
		Targets:        targets,
		AlertThreshold: 60 * time.Second,
		Debounce:       5 * time.Second,
		DeadRSSIPolicy: policy,
		Location:       time.UTC,
	}

	tracker, err := NewTracker(cfg, store, logger.NewTestLogger(), append([]Option{WithClock(clock)}, opts...)...)
	require.NoError(t, err)

	return tracker
}

func TestProcessFrameScenario(t *testing.T) {
	t.Parallel()

	store := &sliceStore{}
	clock := newStepClock(1000)
	tracker := newTestTracker(t, store, clock, models.DeadRSSIAbsent)

	require.NoError(t, tracker.ProcessFrame(context.Background(), frame.Frame{
		Source: mustMAC(t, targetMAC), RSSI: intPtr(-40), Subtype: frame.SubtypeProbeRequest,
	}))

	require.Len(t, store.events, 2)

	dummy := store.events[0]
	assert.Equal(t, models.MessageDummy, dummy.Message)
	assert.False(t, dummy.HasMAC())
	assert.Equal(t, int64(1000), dummy.Epoch)

	alive := store.events[1]
	assert.Equal(t, models.MessageAlive, alive.Message)
	assert.Equal(t, mustMAC(t, targetMAC), alive.MAC)
	assert.Equal(t, int64(1000), alive.Epoch)
	assert.Equal(t, "Thu Jan  1 00:16:40 1970", alive.HumanTime)
	require.NotNil(t, alive.RSSI)
	assert.Equal(t, -40, *alive.RSSI)
	assert.Nil(t, alive.Target)
	assert.Equal(t, []time.Duration{5 * time.Second}, clock.sleeps)

	clock.set(1070)
	require.NoError(t, tracker.ProcessFrame(context.Background(), frame.Frame{
		Source: mustMAC(t, strangerMAC), RSSI: intPtr(-70), Subtype: frame.SubtypeProbeRequest,
	}))

	require.Len(t, store.events, 3)

	dead := store.events[2]
	assert.Equal(t, models.MessageDead, dead.Message)
	assert.Equal(t, mustMAC(t, targetMAC), dead.MAC)
	assert.Equal(t, int64(1070), dead.Epoch)
	assert.Nil(t, dead.RSSI)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, clock.sleeps)
}

func TestProcessFrameNonTargetWithoutStaleLast(t *testing.T) {
	t.Parallel()

	store := &sliceStore{}
	require.NoError(t, store.Write(context.Background(),
		models.NewSightingEvent(mustMAC(t, targetMAC), nil, 1000, time.UTC, models.MessageAlive)))

	clock := newStepClock(1030)
	tracker := newTestTracker(t, store, clock, models.DeadRSSIAbsent)

	require.NoError(t, tracker.ProcessFrame(context.Background(), frame.Frame{Source: mustMAC(t, strangerMAC)}))

	assert.Len(t, store.events, 1)
	assert.Empty(t, clock.sleeps)
}

func TestProcessFrameThresholdBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		epoch    int64
		wantDead bool
	}{
		{name: "one second early", epoch: 2059},
		{name: "exactly at threshold", epoch: 2060, wantDead: true},
		{name: "well past threshold", epoch: 9000, wantDead: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := &sliceStore{}
			require.NoError(t, store.Write(context.Background(),
				models.NewSightingEvent(mustMAC(t, targetMAC), nil, 2000, time.UTC, models.MessageAlive)))

			clock := newStepClock(tt.epoch)
			tracker := newTestTracker(t, store, clock, models.DeadRSSIAbsent)

			require.NoError(t, tracker.ProcessFrame(context.Background(), frame.Frame{Source: mustMAC(t, strangerMAC)}))

			if !tt.wantDead {
				assert.Len(t, store.events, 1)
				assert.Empty(t, clock.sleeps)

				return
			}

			require.Len(t, store.events, 2)
			assert.Equal(t, models.MessageDead, store.events[1].Message)
			assert.Equal(t, tt.epoch, store.events[1].Epoch)
			assert.Len(t, clock.sleeps, 1)
		})
	}
}

func TestProcessFrameSentinelNeverDies(t *testing.T) {
	t.Parallel()

	store := &sliceStore{}
	require.NoError(t, store.Write(context.Background(),
		models.NewSightingEvent(nil, nil, 0, time.UTC, models.MessageDummy)))

	clock := newStepClock(1_000_000)
	tracker := newTestTracker(t, store, clock, models.DeadRSSIAbsent)

	for i := 0; i < 3; i++ {
		require.NoError(t, tracker.ProcessFrame(context.Background(), frame.Frame{Source: mustMAC(t, strangerMAC)}))
	}

	assert.Equal(t, []models.SightingMessage{models.MessageDummy}, store.messages())
	assert.Empty(t, clock.sleeps)
}

func TestProcessFrameAliveAndDeadOnSameFrame(t *testing.T) {
	t.Parallel()

	store := &sliceStore{}
	require.NoError(t, store.Write(context.Background(),
		models.NewSightingEvent(mustMAC(t, otherTarget), intPtr(-55), 1000, time.UTC, models.MessageAlive)))

	clock := newStepClock(1100)
	tracker := newTestTracker(t, store, clock, models.DeadRSSITrigger)

	require.NoError(t, tracker.ProcessFrame(context.Background(), frame.Frame{
		Source: mustMAC(t, targetMAC), RSSI: intPtr(-48),
	}))

	require.Len(t, store.events, 3)

	alive, dead := store.events[1], store.events[2]
	assert.Equal(t, models.MessageAlive, alive.Message)
	assert.Equal(t, mustMAC(t, targetMAC), alive.MAC)
	assert.Equal(t, int64(1100), alive.Epoch)

	// dead is evaluated against the event read before the Alive write
	assert.Equal(t, models.MessageDead, dead.Message)
	assert.Equal(t, mustMAC(t, otherTarget), dead.MAC)
	assert.Equal(t, int64(1100), dead.Epoch)
	require.NotNil(t, dead.RSSI)
	assert.Equal(t, -48, *dead.RSSI)

	assert.Len(t, clock.sleeps, 2)
}

func TestProcessFrameRepeatsDeadAfterAnotherThreshold(t *testing.T) {
	t.Parallel()

	store := &sliceStore{}
	clock := newStepClock(1000)
	tracker := newTestTracker(t, store, clock, models.DeadRSSIAbsent)
	stranger := frame.Frame{Source: mustMAC(t, strangerMAC)}

	require.NoError(t, tracker.ProcessFrame(context.Background(), frame.Frame{Source: mustMAC(t, targetMAC)}))

	for _, epoch := range []int64{1070, 1080, 1129, 1130} {
		clock.set(epoch)
		require.NoError(t, tracker.ProcessFrame(context.Background(), stranger))
	}

	assert.Equal(t, []models.SightingMessage{
		models.MessageDummy,
		models.MessageAlive,
		models.MessageDead,
		models.MessageDead,
	}, store.messages())
	assert.Equal(t, int64(1130), store.events[3].Epoch)
}

func TestProcessFrameTargetMatchIgnoresFormatting(t *testing.T) {
	t.Parallel()

	store := &sliceStore{}
	tracker := newTestTracker(t, store, newStepClock(500), models.DeadRSSIAbsent)

	require.NoError(t, tracker.ProcessFrame(context.Background(), frame.Frame{Source: mustMAC(t, "aa-bb-cc-dd-ee-ff")}))

	assert.Equal(t, []models.SightingMessage{models.MessageDummy, models.MessageAlive}, store.messages())
}

func TestProcessFrameReadErrorSkipsDeadCheck(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := NewMockEventStore(ctrl)
	clock := NewMockClock(ctrl)
	tracker := newTestTracker(t, store, clock, models.DeadRSSIAbsent)

	clock.EXPECT().Now().Return(time.Unix(1000, 0))

	gomock.InOrder(
		store.EXPECT().LastEvent(gomock.Any()).Return(models.SightingEvent{}, false, errStoreDown),
		store.EXPECT().Write(gomock.Any(), eventMatching(models.MessageAlive, "")).Return(nil),
		clock.EXPECT().Sleep(gomock.Any(), 5*time.Second).Return(nil),
	)

	require.NoError(t, tracker.ProcessFrame(context.Background(), frame.Frame{Source: mustMAC(t, targetMAC)}))
}

func TestProcessFrameWriteErrorsAreSwallowed(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := NewMockEventStore(ctrl)
	clock := NewMockClock(ctrl)
	tracker := newTestTracker(t, store, clock, models.DeadRSSIAbsent)

	last := models.NewSightingEvent(mustMAC(t, otherTarget), nil, 100, time.UTC, models.MessageAlive)

	clock.EXPECT().Now().Return(time.Unix(1000, 0))

	gomock.InOrder(
		store.EXPECT().LastEvent(gomock.Any()).Return(last, true, nil),
		store.EXPECT().Write(gomock.Any(), gomock.Any()).Return(errStoreDown),
		clock.EXPECT().Sleep(gomock.Any(), 5*time.Second).Return(nil),
		store.EXPECT().Write(gomock.Any(), eventMatching(models.MessageDead, "11:22:33:44:55:66")).Return(errStoreDown),
		clock.EXPECT().Sleep(gomock.Any(), 5*time.Second).Return(nil),
	)

	require.NoError(t, tracker.ProcessFrame(context.Background(), frame.Frame{Source: mustMAC(t, targetMAC)}))
}

func TestProcessFrameBootstrapWriteFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := NewMockEventStore(ctrl)
	clock := NewMockClock(ctrl)
	tracker := newTestTracker(t, store, clock, models.DeadRSSIAbsent)

	clock.EXPECT().Now().Return(time.Unix(42, 0))

	gomock.InOrder(
		store.EXPECT().LastEvent(gomock.Any()).Return(models.SightingEvent{}, false, nil),
		store.EXPECT().Write(gomock.Any(), eventMatching(models.MessageDummy, "")).Return(errStoreDown),
	)

	require.NoError(t, tracker.ProcessFrame(context.Background(), frame.Frame{Source: mustMAC(t, strangerMAC)}))
}

func TestProcessFrameCancelledDuringDebounce(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := NewMockEventStore(ctrl)
	clock := NewMockClock(ctrl)
	tracker := newTestTracker(t, store, clock, models.DeadRSSIAbsent)

	stale := models.NewSightingEvent(mustMAC(t, otherTarget), nil, 0, time.UTC, models.MessageAlive)

	clock.EXPECT().Now().Return(time.Unix(1000, 0))
	store.EXPECT().LastEvent(gomock.Any()).Return(stale, true, nil)
	store.EXPECT().Write(gomock.Any(), gomock.Any()).Return(nil).Times(1)
	clock.EXPECT().Sleep(gomock.Any(), gomock.Any()).Return(context.Canceled)

	err := tracker.ProcessFrame(context.Background(), frame.Frame{Source: mustMAC(t, targetMAC)})
	require.ErrorIs(t, err, context.Canceled)
}

func TestProcessFrameNotifies(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	notifier := NewMockNotifier(ctrl)
	store := &sliceStore{}
	clock := newStepClock(1000)
	tracker := newTestTracker(t, store, clock, models.DeadRSSIAbsent, WithNotifier(notifier))

	gomock.InOrder(
		notifier.EXPECT().Notify(gomock.Any(), eventMatching(models.MessageAlive, "")).Return(errStoreDown),
		notifier.EXPECT().Notify(gomock.Any(), eventMatching(models.MessageDead, "")).Return(nil),
	)

	require.NoError(t, tracker.ProcessFrame(context.Background(), frame.Frame{Source: mustMAC(t, targetMAC)}))

	clock.set(2000)
	require.NoError(t, tracker.ProcessFrame(context.Background(), frame.Frame{Source: mustMAC(t, strangerMAC)}))
}

// panickingStore panics on every Dead write.
type panickingStore struct {
	sliceStore
}

func (s *panickingStore) Write(ctx context.Context, event models.SightingEvent) error {
	if event.Message == models.MessageDead {
		panic("driver exploded")
	}

	return s.sliceStore.Write(ctx, event)
}

func TestProcessFrameRecoversDeadWritePanic(t *testing.T) {
	t.Parallel()

	store := &panickingStore{}
	require.NoError(t, store.sliceStore.Write(context.Background(),
		models.NewSightingEvent(mustMAC(t, targetMAC), nil, 1000, time.UTC, models.MessageAlive)))

	clock := newStepClock(1070)
	tracker := newTestTracker(t, store, clock, models.DeadRSSIAbsent)

	require.NotPanics(t, func() {
		require.NoError(t, tracker.ProcessFrame(context.Background(), frame.Frame{Source: mustMAC(t, strangerMAC)}))
	})

	assert.Equal(t, []models.SightingMessage{models.MessageAlive}, store.messages())
	assert.Empty(t, clock.sleeps)

	// the next target frame is still recorded
	require.NoError(t, tracker.ProcessFrame(context.Background(), frame.Frame{Source: mustMAC(t, otherTarget)}))
	assert.Equal(t, []models.SightingMessage{models.MessageAlive, models.MessageAlive}, store.messages())
}

func TestProcessFrameRecoversDeadNotifierPanic(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	notifier := NewMockNotifier(ctrl)
	store := &sliceStore{}
	require.NoError(t, store.Write(context.Background(),
		models.NewSightingEvent(mustMAC(t, targetMAC), nil, 1000, time.UTC, models.MessageAlive)))

	clock := newStepClock(1070)
	tracker := newTestTracker(t, store, clock, models.DeadRSSIAbsent, WithNotifier(notifier))

	notifier.EXPECT().Notify(gomock.Any(), eventMatching(models.MessageDead, "aa:bb:cc:dd:ee:ff")).
		DoAndReturn(func(context.Context, models.SightingEvent) error { panic("publisher exploded") })

	require.NotPanics(t, func() {
		require.NoError(t, tracker.ProcessFrame(context.Background(), frame.Frame{Source: mustMAC(t, strangerMAC)}))
	})

	assert.Equal(t, []models.SightingMessage{models.MessageAlive, models.MessageDead}, store.messages())
	assert.Empty(t, clock.sleeps)
}

func TestNewTrackerValidation(t *testing.T) {
	t.Parallel()

	targets, err := NewTargetSet([]string{targetMAC})
	require.NoError(t, err)

	_, err = NewTracker(Config{Targets: targets, AlertThreshold: time.Minute}, nil, logger.NewTestLogger())
	require.ErrorIs(t, err, ErrNilStore)

	_, err = NewTracker(Config{AlertThreshold: time.Minute}, &sliceStore{}, logger.NewTestLogger())
	require.ErrorIs(t, err, ErrNoTargets)

	_, err = NewTracker(Config{Targets: targets}, &sliceStore{}, logger.NewTestLogger())
	require.ErrorIs(t, err, ErrInvalidThreshold)

	tracker, err := NewTracker(Config{Targets: targets, AlertThreshold: time.Minute}, &sliceStore{}, logger.NewTestLogger())
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, tracker.cfg.Debounce)
	assert.Equal(t, models.DeadRSSIAbsent, tracker.cfg.DeadRSSIPolicy)
}

func TestConfigFromModel(t *testing.T) {
	t.Parallel()

	cfg := &models.PresenceConfig{
		Interface: "wlan0mon",
		Targets:   []string{targetMAC},
		TimeZone:  "UTC",
		Store:     models.StoreConfig{Driver: models.StoreDriverMemory},
	}
	require.NoError(t, cfg.Validate())

	tc, err := ConfigFromModel(cfg)
	require.NoError(t, err)

	assert.True(t, tc.Targets.Contains(mustMAC(t, targetMAC)))
	assert.Equal(t, 60*time.Second, tc.AlertThreshold)
	assert.Equal(t, 5*time.Second, tc.Debounce)
	assert.Equal(t, time.UTC, tc.Location)
}
