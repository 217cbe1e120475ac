//go:build !windows
// +build !windows

package midiwindows

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leandrodaf/midiport/internal/logger"
	"github.com/leandrodaf/midiport/sdk/contracts"
)

func TestDummyTransportIsUnsupported(t *testing.T) {
	tr, err := NewTransport(&contracts.PortOptions{Logger: logger.NewNopLogger()})
	require.NoError(t, err)

	assert.ErrorIs(t, tr.Start(context.Background(), nil), contracts.ErrUnsupportedPlatform)
	assert.NoError(t, tr.Stop())
}
