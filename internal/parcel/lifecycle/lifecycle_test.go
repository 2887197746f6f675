package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier-sync/internal/parcel/model"
	appErrors "courier-sync/pkg/errors"
)

func TestAvailableTransitions_MatchesTable(t *testing.T) {
	expected := map[model.ParcelStatus][]model.ParcelStatus{
		model.StatusBooked:    {model.StatusAssigned},
		model.StatusAssigned:  {model.StatusPickedUp, model.StatusCancelled},
		model.StatusPickedUp:  {model.StatusInTransit, model.StatusFailed},
		model.StatusInTransit: {model.StatusDelivered, model.StatusFailed},
		model.StatusFailed:    {model.StatusAssigned, model.StatusCancelled},
		model.StatusDelivered: {},
		model.StatusCancelled: {},
	}

	for current, want := range expected {
		assert.ElementsMatch(t, want, AvailableTransitions(current), "transitions from %s", current)
	}
}

func TestCanTransition_NoReverseEdges(t *testing.T) {
	assert.True(t, CanTransition(model.StatusBooked, model.StatusAssigned))
	assert.False(t, CanTransition(model.StatusAssigned, model.StatusBooked))
	assert.False(t, CanTransition(model.StatusDelivered, model.StatusInTransit))
	assert.False(t, CanTransition(model.StatusCancelled, model.StatusAssigned))
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(model.StatusDelivered))
	assert.True(t, IsTerminal(model.StatusCancelled))
	assert.False(t, IsTerminal(model.StatusFailed))
	assert.False(t, IsTerminal(model.StatusBooked))
}

func TestValidateTransition_FailedRequiresNote(t *testing.T) {
	err := ValidateTransition(model.StatusInTransit, model.StatusFailed, "   ")
	require.Error(t, err)
	appErr, ok := appErrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, appErrors.CodeMissingRequiredField, appErr.Code)

	err = ValidateTransition(model.StatusInTransit, model.StatusFailed, "recipient unreachable")
	assert.NoError(t, err)
}

func TestValidateTransition_IllegalEdge(t *testing.T) {
	err := ValidateTransition(model.StatusBooked, model.StatusDelivered, "")
	require.Error(t, err)
	appErr, ok := appErrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, appErrors.CodeIllegalTransition, appErr.Code)
}

func TestValidateTransition_UnknownCurrentStatus(t *testing.T) {
	err := ValidateTransition(model.ParcelStatus("LOST"), model.StatusAssigned, "")
	require.Error(t, err)
	appErr, ok := appErrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, appErrors.CodeIllegalTransition, appErr.Code)
}

func TestValidateTransition_NoteOnlyRequiredForFailed(t *testing.T) {
	assert.False(t, RequiresNote(model.StatusDelivered))
	assert.False(t, RequiresNote(model.StatusCancelled))
	assert.True(t, RequiresNote(model.StatusFailed))

	// Delivery without a note is fine.
	assert.NoError(t, ValidateTransition(model.StatusInTransit, model.StatusDelivered, ""))
}

func TestProgressIndex(t *testing.T) {
	assert.Equal(t, 0, ProgressIndex(model.StatusBooked))
	assert.Equal(t, 4, ProgressIndex(model.StatusDelivered))
	assert.Equal(t, -1, ProgressIndex(model.StatusFailed))
	assert.Equal(t, -1, ProgressIndex(model.StatusCancelled))
}
