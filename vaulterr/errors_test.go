package vaulterr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	err := InputInvalid("bad descriptor", nil)
	require.Equal(t, CodeInputInvalid, CodeOf(err))
	require.Equal(t, Code(""), CodeOf(errors.New("plain")))
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{ChainError("oracle down", nil), true},
		{RelayError("timeout", nil), true},
		{InputInvalid("bad amount", nil), false},
		{errors.New("plain"), false},
	}
	for _, c := range cases {
		require.Equal(t, c.want, IsTransient(c.err))
	}
}

func TestRetryStopsOnPermanent(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return InputInvalid("never retry this", nil)
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestRetrySucceedsEventually(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return ChainError("oracle flaking", nil)
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}
