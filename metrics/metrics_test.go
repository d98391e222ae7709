package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWithoutAddrIsNoop(t *testing.T) {
	m := New("")
	require.NoError(t, m.ListenAndServe())
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestCallbacksRejectedCounter(t *testing.T) {
	before := CallbacksRejected()
	IncCallbacksRejected()
	require.Equal(t, before+1, CallbacksRejected())
}
