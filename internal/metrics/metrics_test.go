package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()

	require.NoError(t, Register(reg))

	// second registration of the same collectors must fail
	assert.Error(t, Register(reg))
}

func TestIndexLabel(t *testing.T) {
	assert.Equal(t, "search-users", IndexLabel("search-users-7f1c"))
	assert.Equal(t, "search-devices", IndexLabel("search-devices-abc"))
	assert.Equal(t, "custom", IndexLabel("custom"))
	assert.Equal(t, "search-users-", IndexLabel("search-users-"))
}
