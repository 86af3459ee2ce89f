package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlingUnit_Lifecycle(t *testing.T) {
	hu, err := NewHandlingUnit("HU-1", "PAL-0001", "Pallet", "WH1", "DOCK-1")
	require.NoError(t, err)
	assert.Equal(t, HandlingUnitStatusOpen, hu.Status)

	require.NoError(t, hu.Seal("packer"))
	assert.Equal(t, HandlingUnitStatusSealed, hu.Status)

	err = hu.Seal("packer")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Len(t, hu.PendingEvents(), 2)

	rebuilt, err := RehydrateHandlingUnit("HU-1", hu.PendingEvents())
	require.NoError(t, err)
	assert.Equal(t, HandlingUnitStatusSealed, rebuilt.Status)
	assert.Equal(t, "DOCK-1", rebuilt.Location)
}

func TestNewHandlingUnit_Validation(t *testing.T) {
	_, err := NewHandlingUnit("HU-1", "", "Pallet", "WH1", "DOCK-1")

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "label", ve.Field)
}

func TestRehydrateHandlingUnit_NotFound(t *testing.T) {
	_, err := RehydrateHandlingUnit("HU-404", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}
