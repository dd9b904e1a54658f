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
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTargetSet(t *testing.T) {
	t.Parallel()

	set, err := NewTargetSet([]string{"AA:BB:CC:DD:EE:FF", "aa-bb-cc-dd-ee-ff", " 11:22:33:44:55:66 "})
	require.NoError(t, err)

	assert.Equal(t, 2, set.Len())
	assert.Equal(t, []string{"11:22:33:44:55:66", "aa:bb:cc:dd:ee:ff"}, set.Strings())
	assert.True(t, set.Contains(net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}))
	assert.False(t, set.Contains(net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0x00}))
	assert.False(t, set.Contains(nil))
}

func TestNewTargetSetErrors(t *testing.T) {
	t.Parallel()

	_, err := NewTargetSet(nil)
	require.ErrorIs(t, err, ErrNoTargets)

	_, err = NewTargetSet([]string{"not-a-mac"})
	require.ErrorIs(t, err, ErrInvalidTarget)
}

func TestRealClockSleep(t *testing.T) {
	t.Parallel()

	clock := NewRealClock()

	require.NoError(t, clock.Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	require.ErrorIs(t, clock.Sleep(ctx, time.Hour), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
