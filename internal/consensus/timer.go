/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
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

package consensus

import (
	"math/rand"
	"time"
)

const (
	electionTimeoutMin = 200 * time.Millisecond
	electionTimeoutMax = 300 * time.Millisecond

	heartbeatIntervalMin = 100 * time.Millisecond
	heartbeatIntervalMax = 200 * time.Millisecond
)

// TimerDriver owns the one election timer and one heartbeat timer a
// peer is ever allowed to have pending at once (spec.md §4.5). Resets
// stop the previous timer before starting a new one so there is never
// more than one in flight per kind.
type TimerDriver struct {
	rng       *rand.Rand
	election  *time.Timer
	heartbeat *time.Timer
}

// NewTimerDriver returns a driver with both timers stopped. seed makes
// the randomized intervals reproducible in tests; production callers
// should seed from a time-derived source once at startup.
func NewTimerDriver(seed int64) *TimerDriver {
	t := &TimerDriver{rng: rand.New(rand.NewSource(seed))}
	t.election = time.NewTimer(time.Hour)
	t.election.Stop()
	t.heartbeat = time.NewTimer(time.Hour)
	t.heartbeat.Stop()
	return t
}

// ElectionC is the channel that fires when the election timer expires.
// ResetElection and StopElection reuse the same timer, so the channel
// stays the same for the driver's lifetime.
func (t *TimerDriver) ElectionC() <-chan time.Time { return t.election.C }

// HeartbeatC is the channel that fires when the heartbeat timer expires.
func (t *TimerDriver) HeartbeatC() <-chan time.Time { return t.heartbeat.C }

// ResetElection stops any pending election timer and starts a new one
// with a fresh random duration in [200ms, 300ms).
func (t *TimerDriver) ResetElection() {
	stopAndDrain(t.election)
	t.election.Reset(randomIn(t.rng, electionTimeoutMin, electionTimeoutMax))
}

// StopElection cancels the election timer without starting a new one,
// used on the Follower/Candidate -> Leader transition.
func (t *TimerDriver) StopElection() {
	stopAndDrain(t.election)
}

// ResetHeartbeat stops any pending heartbeat timer and starts a new one
// with a fresh random duration in [100ms, 200ms).
func (t *TimerDriver) ResetHeartbeat() {
	stopAndDrain(t.heartbeat)
	t.heartbeat.Reset(randomIn(t.rng, heartbeatIntervalMin, heartbeatIntervalMax))
}

// StopHeartbeat cancels the heartbeat timer, used on stepping down from Leader.
func (t *TimerDriver) StopHeartbeat() {
	stopAndDrain(t.heartbeat)
}

func randomIn(rng *rand.Rand, lo, hi time.Duration) time.Duration {
	span := hi - lo
	if span <= 0 {
		return lo
	}
	return lo + time.Duration(rng.Int63n(int64(span)))
}

func stopAndDrain(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
