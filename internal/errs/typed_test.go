package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStorage_WrapsOnce(t *testing.T) {
	t.Parallel()

	require.NoError(t, Storage("noop", nil))

	cause := errors.New("disk full")
	err := Storage("readings.add", cause)
	require.True(t, IsStorage(err))
	require.ErrorIs(t, err, cause)
	require.Equal(t, "storage readings.add: disk full", err.Error())

	wrapped := fmt.Errorf("outer: %w", err)
	again := Storage("tanks.replace", wrapped)
	var se *StorageError
	require.ErrorAs(t, again, &se)
	require.Equal(t, "readings.add", se.Op)
}

func TestTransportError_Unwrap(t *testing.T) {
	t.Parallel()

	netErr := errors.New("connection refused")
	err := error(&TransportError{Err: netErr})
	require.True(t, IsTransport(err))
	require.ErrorIs(t, err, netErr)
	require.Equal(t, "transport: connection refused", err.Error())

	unauth := error(&TransportError{Status: http.StatusUnauthorized, Code: "token_invalid", Message: "expired"})
	require.ErrorIs(t, unauth, ErrUnauthorized)
	require.Equal(t, "transport: HTTP 401 token_invalid: expired", unauth.Error())

	plain := &TransportError{Status: http.StatusBadGateway}
	require.Nil(t, plain.Unwrap())
	require.Equal(t, "transport: HTTP 502", plain.Error())
}
