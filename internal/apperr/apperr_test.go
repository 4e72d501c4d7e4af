package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind_StatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind Kind
		want int
	}{
		{KindBadRequest, http.StatusBadRequest},
		{KindUnauthorized, http.StatusUnauthorized},
		{KindNotFound, http.StatusNotFound},
		{KindConflict, http.StatusConflict},
		{KindInternal, http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.kind.String(), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.kind.StatusCode())
		})
	}
}

func TestKindOf_SurvivesWrapping(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("listing files: %w", BadRequest("Invalid page"))
	assert.Equal(t, KindBadRequest, KindOf(err))
	assert.Equal(t, "Invalid page", PublicMessage(err))
	assert.True(t, Is(err, KindBadRequest))
	assert.False(t, Is(nil, KindBadRequest))
}

func TestPublicMessage_HidesUnclassified(t *testing.T) {
	t.Parallel()

	err := errors.New("dial tcp 10.0.0.3:4000: connection refused")
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, GenericMessage, PublicMessage(err))
}

func TestInternal_KeepsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	err := Internal("File creation failed", cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, "File creation failed", PublicMessage(err))
	assert.Equal(t, "File creation failed: disk full", err.Error())
	assert.Equal(t, http.StatusInternalServerError, err.Kind.StatusCode())
}

func TestUnauthorizedAndNotFound_AreUniform(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Unauthorized", Unauthorized().Message)
	assert.Equal(t, "Not found", NotFound().Message)
}
