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

package cfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogSeverityUnmarshalling(t *testing.T) {
	t.Parallel()
	tests := []struct {
		str     string
		want    LogSeverity
		wantErr bool
	}{
		{"TRACE", TraceLogSeverity, false},
		{"info", InfoLogSeverity, false},
		{"Warning", WarningLogSeverity, false},
		{"bogus", "", true},
	}

	for _, tc := range tests {
		var l LogSeverity
		err := l.UnmarshalText([]byte(tc.str))
		if tc.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.want, l)
	}
}

func TestLogSeverityRank(t *testing.T) {
	assert.Less(t, TraceLogSeverity.Rank(), DebugLogSeverity.Rank())
	assert.Less(t, DebugLogSeverity.Rank(), InfoLogSeverity.Rank())
	assert.Less(t, InfoLogSeverity.Rank(), WarningLogSeverity.Rank())
	assert.Less(t, WarningLogSeverity.Rank(), ErrorLogSeverity.Rank())
	assert.Less(t, ErrorLogSeverity.Rank(), OffLogSeverity.Rank())
	assert.Equal(t, -1, LogSeverity("bogus").Rank())
}

func TestOctalUnmarshalling(t *testing.T) {
	t.Parallel()
	tests := []struct {
		str      string
		expected Octal
		wantErr  bool
	}{
		{"755", Octal(0755), false},
		{"0", Octal(0), false},
		{"not-octal", Octal(0), true},
	}

	for _, tc := range tests {
		var o Octal
		err := o.UnmarshalText([]byte(tc.str))
		if tc.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.expected, o)
	}
}

func TestOctalMarshalling(t *testing.T) {
	o := Octal(0765)

	b, err := o.MarshalText()

	require.NoError(t, err)
	assert.Equal(t, "765", string(b))
}
