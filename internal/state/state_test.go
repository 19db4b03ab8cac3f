package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetRemove(t *testing.T) {
	m, err := NewManagerAt(t.TempDir())
	require.NoError(t, err)

	got, err := m.Get("abc123")
	require.NoError(t, err)
	assert.Nil(t, got)

	want := &WorkspaceState{ContainerID: "c1", WorkspaceFolder: "/ws", ConfigHash: "h1"}
	require.NoError(t, m.Put("abc123", want))

	got, err = m.Get("abc123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.ContainerID, got.ContainerID)

	require.NoError(t, m.Remove("abc123"))
	got, err = m.Get("abc123")
	require.NoError(t, err)
	assert.Nil(t, got)
}
