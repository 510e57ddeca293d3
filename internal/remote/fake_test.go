package remote

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFakeAddDenyIdempotentCallCount(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	require.NoError(t, f.AddDeny(ctx, "example.com"))
	require.NoError(t, f.AddDeny(ctx, "example.com"))
	require.Equal(t, 2, f.AddDenyCalls) // each call to the client counts; idempotence is in resulting state
	list, err := f.GetDenylist(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"example.com"}, list)
}

func TestFakeRemoveDenyOnAbsentSucceeds(t *testing.T) {
	f := NewFake()
	ctx := context.Background()
	require.NoError(t, f.RemoveDeny(ctx, "never-added.com"))
	list, err := f.GetDenylist(ctx)
	require.NoError(t, err)
	require.Empty(t, list)
}
