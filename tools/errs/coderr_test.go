package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeErrorIs(t *testing.T) {
	err := ErrEmptyMessage.WrapMsg("content and attachment blank")

	assert.True(t, errors.Is(err, ErrEmptyMessage))
	assert.True(t, errors.Is(err, ErrInvalidRequest), "EmptyMessage is an InvalidRequest")
	assert.False(t, errors.Is(ErrInvalidRequest.Wrap(), ErrEmptyMessage))
	assert.False(t, errors.Is(err, ErrNotFound))

	wrapped := fmt.Errorf("handler: %w", err)
	assert.True(t, errors.Is(wrapped, ErrInvalidRequest))
}

func TestAsCode(t *testing.T) {
	ce := AsCode(ErrNotFound.WrapMsg("notification", "id", 7))
	require.NotNil(t, ce)
	assert.Equal(t, NotFound, ce.Code)
	assert.Equal(t, "notification, id=7", ce.Detail)

	plain := AsCode(errors.New("boom"))
	assert.Equal(t, ServerInternalError, plain.Code)
	assert.Empty(t, plain.Detail)

	assert.Nil(t, AsCode(nil))
}

func TestWrapMsgDoesNotMutateSentinel(t *testing.T) {
	_ = ErrAuth.WrapMsg("expired")
	assert.Empty(t, ErrAuth.Detail)
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, 401, HTTPStatus(AuthError))
	assert.Equal(t, 403, HTTPStatus(NotAParticipant))
	assert.Equal(t, 400, HTTPStatus(EmptyMessage))
	assert.Equal(t, 404, HTTPStatus(NotFound))
	assert.Equal(t, 500, HTTPStatus(TransientStoreConflict))
}

func TestDetailedSentinel(t *testing.T) {
	expired := ErrAuth.WithDetail("expired credential")
	invalid := ErrAuth.WithDetail("invalid credential")

	err := expired.WrapMsg("", "sub", "alice")
	assert.True(t, errors.Is(err, expired))
	assert.True(t, errors.Is(err, ErrAuth))
	assert.False(t, errors.Is(err, invalid))
}
