package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLedgerRoundTrip(t *testing.T) {
	l := NewLedger(NewMemDB())

	require.NoError(t, l.AppendFinalized(0, []byte("genesis")))
	require.NoError(t, l.AppendFinalized(1, []byte("v1")))

	got, err := l.FinalizedAt(1)
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), got)

	require.NoError(t, l.PutDarkRecord("service.dark", []byte("record-bytes")))
	got, err = l.DarkRecord("service.dark")
	require.NoError(t, err)
	require.Equal(t, []byte("record-bytes"), got)

	require.NoError(t, l.DeleteDarkRecord("service.dark"))
	got, err = l.DarkRecord("service.dark")
	require.NoError(t, err)
	require.Nil(t, got)
}
