package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppErrorWrapsSentinel(t *testing.T) {
	err := Newf(ErrInvalidCorpus, "duplicate document id %q", "d1")
	require.True(t, Is(err, ErrInvalidCorpus))
	require.Equal(t, `invalid corpus: duplicate document id "d1"`, err.Error())

	wrapped := fmt.Errorf("loading: %w", err)
	var appErr *AppError
	require.True(t, As(wrapped, &appErr))
	require.Equal(t, ExitCorpus, appErr.ExitCode)
	require.Equal(t, ExitCorpus, ExitCode(wrapped))
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{New(ErrInvalidConfiguration, "x"), ExitConfiguration},
		{New(ErrMissingDocument, "x"), ExitCorpus},
		{New(ErrDegenerateTopic, "x"), ExitNumerical},
		{fmt.Errorf("wrapped: %w", ErrNumericalInstability), ExitNumerical},
		{ErrTimeout, ExitFailure},
		{errors.New("plain"), ExitFailure},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ExitCode(tc.err), tc.err.Error())
	}
}

func TestReclassify(t *testing.T) {
	require.NoError(t, Reclassify(nil, "fold %d", 1))

	base := errors.New("nan in gamma")
	err := Reclassify(base, "fold %d", 2)
	require.ErrorIs(t, err, ErrNumericalInstability)
	require.ErrorIs(t, err, base)
	require.Contains(t, err.Error(), "fold 2")

	already := New(ErrNumericalInstability, "sum is 0.9")
	require.Same(t, error(already), Reclassify(already, "ignored"))
}

func TestFromContext(t *testing.T) {
	require.NoError(t, FromContext(nil, "op"))

	err := FromContext(context.DeadlineExceeded, "fold 3")
	require.ErrorIs(t, err, ErrTimeout)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	err = FromContext(context.Canceled, "fold 3")
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrTimeout)
}
