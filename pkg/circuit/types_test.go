package circuit

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateString(t *testing.T) {
	cases := []struct {
		state State
		want  string
	}{
		{state: StateClosed, want: "closed"},
		{state: StateOpen, want: "open"},
		{state: StateHalfOpen, want: "half-open"},
		{state: State(99), want: "unknown"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.state.String())
	}
}

func TestSnapshotJSON_UsesStateNames(t *testing.T) {
	data, err := json.Marshal(Snapshot{State: StateHalfOpen, CanAttempt: true})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"half-open"`)
}
