// Copyright 2026 The RepeatFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClockNowAdvances(t *testing.T) {
	var rc RealClock
	t1 := rc.Now()
	time.Sleep(time.Millisecond)
	t2 := rc.Now()
	assert.True(t, t2.After(t1))
}

func TestSimulatedClockNowIsFrozenUntilAdvanced(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sc := NewSimulatedClock(start)
	assert.Equal(t, start, sc.Now())

	sc.AdvanceTime(time.Hour)
	assert.Equal(t, start.Add(time.Hour), sc.Now())

	later := start.Add(2 * time.Hour)
	sc.SetTime(later)
	assert.Equal(t, later, sc.Now())
}

func TestSimulatedClockAfterFiresOnAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sc := NewSimulatedClock(start)

	ch := sc.After(time.Minute)
	select {
	case <-ch:
		t.Fatal("After fired before its duration elapsed")
	default:
	}

	sc.AdvanceTime(time.Minute)
	select {
	case fired := <-ch:
		assert.Equal(t, start.Add(time.Minute), fired)
	default:
		t.Fatal("After did not fire once its duration elapsed")
	}
}

func TestSimulatedClockAfterNonPositiveDurationFiresImmediately(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sc := NewSimulatedClock(start)

	ch := sc.After(0)
	select {
	case fired := <-ch:
		assert.Equal(t, start, fired)
	default:
		t.Fatal("After with non-positive duration should fire immediately")
	}
}

var _ Clock = RealClock{}
var _ Clock = &SimulatedClock{}
