package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{BadRequest, http.StatusBadRequest},
		{Unauthorized, http.StatusUnauthorized},
		{NotFound, http.StatusNotFound},
		{Conflict, http.StatusConflict},
		{Referential, http.StatusBadRequest},
		{Internal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.HTTPStatus())
		})
	}
}

func TestKindOfThroughWrapping(t *testing.T) {
	cause := errors.New("disk on fire")
	err := fmt.Errorf("handler: %w", Wrap(NotFound, "article 3 not found", cause))

	assert.Equal(t, NotFound, KindOf(err))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrConflict)
	assert.Equal(t, "article 3 not found", PublicMessage(err))
}

func TestUnclassifiedErrorsAreInternal(t *testing.T) {
	err := errors.New("SQLITE_BUSY: database is locked")
	assert.Equal(t, Internal, KindOf(err))
	assert.Equal(t, "internal server error", PublicMessage(err))

	wrapped := Wrap(Internal, "failed to list articles", err)
	assert.Equal(t, "internal server error", PublicMessage(wrapped))
}
