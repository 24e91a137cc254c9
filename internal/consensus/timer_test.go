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
	"testing"
	"time"
)

func TestTimerDriverStartsStopped(t *testing.T) {
	td := NewTimerDriver(1)
	select {
	case <-td.ElectionC():
		t.Fatal("election timer fired before ever being reset")
	case <-time.After(20 * time.Millisecond):
	}
	select {
	case <-td.HeartbeatC():
		t.Fatal("heartbeat timer fired before ever being reset")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestResetElectionFiresWithinBounds(t *testing.T) {
	td := NewTimerDriver(42)
	start := time.Now()
	td.ResetElection()

	select {
	case <-td.ElectionC():
		elapsed := time.Since(start)
		if elapsed < electionTimeoutMin || elapsed > electionTimeoutMax+50*time.Millisecond {
			t.Fatalf("election fired after %v, want within [%v, %v]", elapsed, electionTimeoutMin, electionTimeoutMax)
		}
	case <-time.After(electionTimeoutMax + 100*time.Millisecond):
		t.Fatal("election timer never fired")
	}
}

func TestResetElectionReplacesPendingTimer(t *testing.T) {
	td := NewTimerDriver(7)
	td.ResetElection()
	// Resetting again before the first fires must not leave two timers
	// pending - only the most recent reset's duration should matter.
	td.ResetElection()

	select {
	case <-td.ElectionC():
	case <-time.After(electionTimeoutMax + 100*time.Millisecond):
		t.Fatal("election timer never fired after a second reset")
	}

	select {
	case <-td.ElectionC():
		t.Fatal("a second election firing arrived; exactly one timer should be pending per kind")
	case <-time.After(electionTimeoutMax + 50*time.Millisecond):
	}
}

func TestStopElectionPreventsFiring(t *testing.T) {
	td := NewTimerDriver(3)
	td.ResetElection()
	td.StopElection()

	select {
	case <-td.ElectionC():
		t.Fatal("election timer fired after being stopped")
	case <-time.After(electionTimeoutMax + 50*time.Millisecond):
	}
}

func TestHeartbeatShorterThanElectionMinimum(t *testing.T) {
	if heartbeatIntervalMax > electionTimeoutMin {
		t.Fatalf("heartbeat max %v must stay below election min %v, or a leader's own heartbeat could starve its followers' election timers", heartbeatIntervalMax, electionTimeoutMin)
	}
}
