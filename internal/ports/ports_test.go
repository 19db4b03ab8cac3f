package ports

import (
	"bytes"
	"testing"

	"github.com/get2knowio/deacon/internal/config"
	"github.com/get2knowio/deacon/internal/redact"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

// TestEmitRedactsSecretInLabel covers scenario S4 from spec §8: a secret
// embedded in a port label is redacted in the emitted PORT_EVENT line.
func TestEmitRedactsSecretInLabel(t *testing.T) {
	cfg := &config.DevContainerConfig{
		PortsAttributes: map[string]config.PortAttributes{
			"8080": {Label: strPtr("Web with super-secret-token")},
		},
	}
	events := Build(cfg, []Reported{{Port: 8080, Protocol: "tcp", LocalPort: 8080}})
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Label)
	assert.Equal(t, "Web with super-secret-token", *events[0].Label)

	reg := redact.NewRegistry()
	reg.Add("super-secret-token")

	var buf bytes.Buffer
	require.NoError(t, Emit(&buf, reg, events))
	line := buf.String()
	assert.Contains(t, line, "PORT_EVENT: ")
	assert.Contains(t, line, "****")
	assert.NotContains(t, line, "super-secret-token")
}

func TestBuildSortsByPortAscending(t *testing.T) {
	events := Build(nil, []Reported{{Port: 9000, Protocol: "tcp"}, {Port: 3000, Protocol: "tcp"}})
	require.Len(t, events, 2)
	assert.Equal(t, 3000, events[0].Port)
	assert.Equal(t, 9000, events[1].Port)
}
