package options

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockStore_FilterOnSelect(t *testing.T) {
	now := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	m := NewMockStore("eth", 3000, now)

	assert.Equal(t, "ETH", m.BaseCoin())
	assert.Equal(t, 3000.0, m.CurrentPrice())
	assert.Equal(t, StatusReady, m.State())
	assert.False(t, m.Loading())
	assert.NoError(t, m.Err())

	exps := m.Expirations()
	require.Len(t, exps, 3)
	assert.Equal(t, exps[0], m.SelectedExpiry())
	for _, c := range m.CallOptions() {
		assert.Equal(t, exps[0], c.Expiry)
	}

	notified := 0
	unsubscribe := m.Subscribe(func() { notified++ })
	defer unsubscribe()

	require.NoError(t, m.SetSelectedExpiry(ExpiryAll))
	assert.Len(t, m.CallOptions(), len(m.Snapshot().Calls))
	assert.ErrorIs(t, m.SetSelectedExpiry("1999-01-01"), ErrUnknownExpiry)

	require.NoError(t, m.Refresh(context.Background()))
	assert.Equal(t, 2, notified)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, m.Refresh(ctx))
}

func TestMockStore_FromSnapshot(t *testing.T) {
	snap := Snapshot{
		Calls:       []OptionContract{{Symbol: "b", Strike: 2, Expiry: "2024-09-27"}, {Symbol: "a", Strike: 1, Expiry: "2024-08-30"}},
		Puts:        []OptionContract{},
		Expirations: []string{"2024-08-30", "2024-09-27"},
	}
	m := NewMockStoreFromSnapshot("BTC", 60000, snap)
	assert.Equal(t, "2024-08-30", m.SelectedExpiry())
	require.Len(t, m.CallOptions(), 1)
	assert.Equal(t, "a", m.CallOptions()[0].Symbol)

	// 传入的快照不受影响
	assert.Equal(t, "b", snap.Calls[0].Symbol)

	empty := NewMockStoreFromSnapshot("BTC", 0, Snapshot{})
	assert.Equal(t, ExpiryAll, empty.SelectedExpiry())
	assert.Empty(t, empty.CallOptions())
}
