package instance

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDPrefersOverride(t *testing.T) {
	t.Setenv(EnvInstanceID, "relay-7")
	assert.Equal(t, "relay-7", ID("fallback"))
}

func TestIDFallsBackToHostname(t *testing.T) {
	t.Setenv(EnvInstanceID, "")
	host, err := os.Hostname()
	if err != nil || host == "" {
		assert.Equal(t, "fallback", ID("fallback"))
		return
	}
	assert.Equal(t, host, ID("fallback"))
}
