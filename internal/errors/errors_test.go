package errors_test

import (
	"context"
	"testing"

	"github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestWrapf(t *testing.T) {
	require.NoError(t, errors.Wrapf(nil, "nothing"))

	err := errors.Wrapf(context.Canceled, "refresh %s", "grant")
	require.EqualError(t, err, "refresh grant: context canceled")
	require.True(t, errors.Is(err, context.Canceled))
}

func TestWithCause(t *testing.T) {
	sentinel := errors.New("sentinel")
	require.Equal(t, sentinel, errors.WithCause(sentinel, nil))

	err := errors.WithCause(sentinel, context.DeadlineExceeded)
	require.True(t, errors.Is(err, sentinel))
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}
