package streamctl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamvision/pkg/models"
)

func TestActivateSetsSessionID(t *testing.T) {
	c := New()
	s, err := c.Activate("abc")
	require.NoError(t, err)
	assert.Equal(t, models.StreamActive, s.Status)
	assert.NotEmpty(t, s.SessionID)
}

func TestSecondActivationFails(t *testing.T) {
	c := New()
	_, err := c.Activate("abc")
	require.NoError(t, err)

	_, err = c.Activate("xyz")
	assert.ErrorIs(t, err, models.ErrSecondStreamActive)
}

func TestReactivatingSameStreamSucceeds(t *testing.T) {
	c := New()
	first, err := c.Activate("abc")
	require.NoError(t, err)

	second, err := c.Activate("abc")
	require.NoError(t, err)
	assert.Equal(t, first.StreamKey, second.StreamKey)
}

func TestDeactivateFreesSlot(t *testing.T) {
	c := New()
	_, err := c.Activate("abc")
	require.NoError(t, err)

	c.Deactivate("abc")

	_, ok := c.ActiveStream()
	assert.False(t, ok)

	_, err = c.Activate("xyz")
	assert.NoError(t, err)
}
