package ledger

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrade(id string, ts time.Time) TradeRecord {
	return TradeRecord{
		OrderID:       id,
		ClientOrderID: "client-" + id,
		Symbol:        "BTC-30AUG24-60000-C",
		Side:          "Buy",
		OrderType:     "Limit",
		Price:         50,
		Quantity:      0.01,
		Timestamp:     ts,
	}
}

// 每个后端都以同一路径打开两次，第二次验证持久化后的加载路径
func backendFactories(t *testing.T) map[string]func() Backend {
	dir := t.TempDir()
	return map[string]func() Backend{
		"file": func() Backend { return NewFileBackend(filepath.Join(dir, "file")) },
		"sqlite": func() Backend {
			b, err := OpenSQLiteBackend(filepath.Join(dir, "sqlite", "ledger.db"))
			require.NoError(t, err)
			return b
		},
		"badger": func() Backend {
			b, err := OpenBadgerBackend(filepath.Join(dir, "badger"), false)
			require.NoError(t, err)
			return b
		},
	}
}

func TestLedger_RoundTripThroughBackends(t *testing.T) {
	ts := time.Date(2024, 8, 1, 12, 30, 0, 0, time.UTC)
	for name, open := range backendFactories(t) {
		t.Run(name, func(t *testing.T) {
			l, err := Open(open())
			require.NoError(t, err)
			assert.Empty(t, l.Trades())

			rec := sampleTrade("abc123", ts)
			require.NoError(t, l.AddTrade(rec))
			require.NoError(t, l.Close())

			reopened, err := Open(open())
			require.NoError(t, err)
			defer reopened.Close()

			got := reopened.Trades()
			require.Len(t, got, 1)
			assert.Equal(t, rec, got[0])
		})
	}
}

func TestLedger_ClearHistory(t *testing.T) {
	for name, open := range backendFactories(t) {
		t.Run(name, func(t *testing.T) {
			backend := open()
			l, err := Open(backend)
			require.NoError(t, err)

			require.NoError(t, l.AddTrade(sampleTrade("1", time.Now())))
			require.NoError(t, l.AddTrade(sampleTrade("2", time.Now())))
			assert.Equal(t, 2, l.Len())

			require.NoError(t, l.ClearHistory())
			assert.Empty(t, l.Trades())

			blob, err := backend.Load()
			require.NoError(t, err)
			assert.Empty(t, blob)
			require.NoError(t, l.Close())
		})
	}
}

func TestLedger_WriteFailureKeepsMemory(t *testing.T) {
	backend := NewMemoryBackend()
	l, err := Open(backend)
	require.NoError(t, err)

	require.NoError(t, l.AddTrade(sampleTrade("1", time.Now())))
	backend.SetFailSave(true)

	err = l.AddTrade(sampleTrade("2", time.Now()))
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "save", pe.Op)
	assert.ErrorIs(t, err, ErrInjected)

	// 内存与持久化内容不一致：内存有两条，后端只有一条
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, 1, backend.Saves())

	backend.SetFailSave(false)
	require.NoError(t, l.AddTrade(sampleTrade("3", time.Now())))
	reopened, err := Open(backend)
	require.NoError(t, err)
	assert.Equal(t, 3, reopened.Len())
}

func TestLedger_CorruptBlob(t *testing.T) {
	l, err := Open(NewMemoryBackendWith([]byte(`{not json`)))
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "load", pe.Op)
	require.NotNil(t, l)
	assert.Empty(t, l.Trades())

	require.NoError(t, l.AddTrade(sampleTrade("1", time.Now())))
	assert.Equal(t, 1, l.Len())
}

func TestLedger_LoadFailure(t *testing.T) {
	backend := NewMemoryBackend()
	backend.FailLoad = true
	l, err := Open(backend)
	assert.ErrorIs(t, err, ErrInjected)
	assert.Equal(t, 0, l.Len())
}

func TestLedger_TradesNewestFirst(t *testing.T) {
	l, err := Open(NewMemoryBackend())
	require.NoError(t, err)

	base := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, l.AddTrade(sampleTrade("old", base)))
	require.NoError(t, l.AddTrade(sampleTrade("new", base.Add(time.Hour))))
	require.NoError(t, l.AddTrade(sampleTrade("same-a", base)))

	got := l.Trades()
	require.Len(t, got, 3)
	assert.Equal(t, "new", got[0].OrderID)
	assert.Equal(t, "same-a", got[1].OrderID)
	assert.Equal(t, "old", got[2].OrderID)

	// 返回的是副本
	got[0].OrderID = "mutated"
	assert.Equal(t, "new", l.Trades()[0].OrderID)
}

func TestLedger_DefaultTimestampAndSubscribe(t *testing.T) {
	l, err := Open(NewMemoryBackend())
	require.NoError(t, err)
	fixed := time.Date(2024, 8, 2, 3, 4, 5, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	calls := 0
	unsubscribe := l.Subscribe(func() { calls++ })
	rec := sampleTrade("1", time.Time{})
	require.NoError(t, l.AddTrade(rec))
	assert.Equal(t, fixed, l.Trades()[0].Timestamp)

	require.NoError(t, l.ClearHistory())
	assert.Equal(t, 2, calls)

	unsubscribe()
	require.NoError(t, l.AddTrade(rec))
	assert.Equal(t, 2, calls)
}

func TestLedger_WritesAfterClose(t *testing.T) {
	ts := time.Date(2024, 8, 1, 12, 30, 0, 0, time.UTC)
	for name, open := range backendFactories(t) {
		t.Run(name, func(t *testing.T) {
			l, err := Open(open())
			require.NoError(t, err)
			require.NoError(t, l.Close())
			require.NoError(t, l.Close())

			err = l.AddTrade(sampleTrade("late", ts))
			var pe *PersistenceError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, "save", pe.Op)
			assert.True(t, errors.Is(err, ErrClosed))

			// 锁未被占用，内存记录仍可读
			assert.Equal(t, 1, l.Len())
			assert.Equal(t, "late", l.Trades()[0].OrderID)

			err = l.ClearHistory()
			assert.ErrorIs(t, err, ErrClosed)
			assert.Empty(t, l.Trades())
		})
	}
}

func TestBackend_ClosedReturnsErrClosed(t *testing.T) {
	dir := t.TempDir()
	sqliteBackend, err := OpenSQLiteBackend(filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
	badgerBackend, err := OpenBadgerBackend("", true)
	require.NoError(t, err)

	for name, b := range map[string]Backend{
		"sqlite": sqliteBackend,
		"badger": badgerBackend,
		"memory": NewMemoryBackend(),
	} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, b.Save([]byte(`[]`)))
			require.NoError(t, b.Close())
			require.NoError(t, b.Close())

			assert.ErrorIs(t, b.Save([]byte(`[]`)), ErrClosed)
			assert.ErrorIs(t, b.Clear(), ErrClosed)
			_, err := b.Load()
			assert.ErrorIs(t, err, ErrClosed)
		})
	}
}

func TestOpenBackend(t *testing.T) {
	dir := t.TempDir()
	for _, kind := range []string{"", "file", "sqlite", "badger", "memory"} {
		b, err := OpenBackend(kind, dir)
		require.NoError(t, err, kind)
		require.NoError(t, b.Close())
	}
	_, err := OpenBackend("redis", dir)
	assert.Error(t, err)
}
