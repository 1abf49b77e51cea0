package apitable

import (
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediation-router/internal/api"
	"mediation-router/internal/common/errors"
	"mediation-router/internal/common/logging"
)

func newAPI(t testing.TB, name, context string) *api.API {
	t.Helper()
	a, err := api.New(name, context, api.NoVersion(), &api.Resource{Methods: []string{"GET"}})
	require.NoError(t, err)
	return a
}

func contexts(apis []*api.API) []string {
	out := make([]string, len(apis))
	for i, a := range apis {
		out[i] = a.Context
	}
	return out
}

func TestTable_SpecificityOrder(t *testing.T) {
	permutations := [][]string{
		{"/a", "/a/b", "/a/b/c"},
		{"/a/b/c", "/a/b", "/a"},
		{"/a/b", "/a", "/a/b/c"},
		{"/a/b", "/a/b/c", "/a"},
	}

	for _, order := range permutations {
		table := New(logging.NewNopLogger())
		for _, ctx := range order {
			require.NoError(t, table.Add(newAPI(t, "api"+ctx, ctx)))
		}
		assert.Equal(t, []string{"/a/b/c", "/a/b", "/a"}, contexts(table.Snapshot()), "insertion order %v", order)
	}
}

func TestTable_TiesKeepInsertionOrder(t *testing.T) {
	table := New(logging.NewNopLogger())
	require.NoError(t, table.Add(newAPI(t, "x", "/x")))
	require.NoError(t, table.Add(newAPI(t, "y", "/y")))
	require.NoError(t, table.Add(newAPI(t, "root", "/")))
	require.NoError(t, table.Add(newAPI(t, "z", "/z")))

	assert.Equal(t, []string{"x", "y", "z", "root"}, table.Names())
}

func TestTable_RedeployKeepsPositionAndReplaces(t *testing.T) {
	table := New(logging.NewNopLogger())
	require.NoError(t, table.Add(newAPI(t, "x", "/x")))
	require.NoError(t, table.Add(newAPI(t, "y", "/y")))

	replacement := newAPI(t, "x", "/x2")
	require.NoError(t, table.Add(replacement))

	assert.Equal(t, []string{"x", "y"}, table.Names())
	got, ok := table.Get("x")
	require.True(t, ok)
	assert.Same(t, replacement, got)
	assert.Equal(t, 2, table.Len())
}

func TestTable_AmbiguousContextRejected(t *testing.T) {
	table := New(logging.NewNopLogger())
	require.NoError(t, table.Add(newAPI(t, "orders", "/orders")))

	err := table.Add(newAPI(t, "orders-copy", "/orders/"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAmbiguousAPI)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
	assert.Equal(t, []string{"orders"}, table.Names())

	versioned, err := api.New("orders-v1", "/orders", api.URLVersion("v1", api.SourcePath, ""),
		&api.Resource{Methods: []string{"GET"}})
	require.NoError(t, err)
	assert.NoError(t, table.Add(versioned))
}

func TestTable_Remove(t *testing.T) {
	table := New(logging.NewNopLogger())
	require.NoError(t, table.Add(newAPI(t, "x", "/x")))

	assert.True(t, table.Remove("x"))
	assert.False(t, table.Remove("x"))
	assert.Equal(t, 0, table.Len())
	_, ok := table.Get("x")
	assert.False(t, ok)
}

func TestTable_AddDeferredThenReorder(t *testing.T) {
	table := New(logging.NewNopLogger())
	for _, ctx := range []string{"/a", "/", "/a/b/c", "/b", "/a/b"} {
		require.NoError(t, table.AddDeferred(newAPI(t, "api"+ctx, ctx)))
	}

	assert.False(t, table.Sorted())
	assert.Equal(t, []string{"/a", "/", "/a/b/c", "/b", "/a/b"}, contexts(table.Snapshot()))

	table.Reorder()

	assert.True(t, table.Sorted())
	assert.Equal(t, []string{"/a/b/c", "/a/b", "/a", "/b", "/"}, contexts(table.Snapshot()))
}

func TestTable_UpdateIsAllOrNothing(t *testing.T) {
	table := New(logging.NewNopLogger())
	require.NoError(t, table.Add(newAPI(t, "x", "/x")))
	require.NoError(t, table.Add(newAPI(t, "y", "/y")))
	before := table.Snapshot()

	err := table.Update(func(tx *Tx) error {
		assert.True(t, tx.Remove("x"))
		return tx.Add(newAPI(t, "z", "/y"))
	})
	require.ErrorIs(t, err, ErrAmbiguousAPI)
	assert.Equal(t, before, table.Snapshot())

	err = table.Update(func(tx *Tx) error {
		tx.Remove("x")
		_, ok := tx.Get("x")
		assert.False(t, ok)
		return tx.Add(newAPI(t, "x", "/x/deeper"))
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/x/deeper", "/y"}, contexts(table.Snapshot()))
}

func TestTx_ReplaceKeepsPositionOrLeavesTableAlone(t *testing.T) {
	table := New(logging.NewNopLogger())
	require.NoError(t, table.Add(newAPI(t, "old", "/api")))
	require.NoError(t, table.Add(newAPI(t, "other", "/other")))

	err := table.Update(func(tx *Tx) error {
		return tx.Replace("old", newAPI(t, "renamed", "/api"))
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"renamed", "other"}, table.Names())

	err = table.Update(func(tx *Tx) error {
		err := tx.Replace("renamed", newAPI(t, "again", "/other"))
		assert.ErrorIs(t, err, ErrAmbiguousAPI)
		_, ok := tx.Get("renamed")
		assert.True(t, ok, "failed replace keeps the original")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"renamed", "other"}, table.Names())
}

func TestTable_SnapshotIsStableAfterMutation(t *testing.T) {
	table := New(logging.NewNopLogger())
	require.NoError(t, table.Add(newAPI(t, "x", "/x")))

	snap := table.Snapshot()
	require.NoError(t, table.Add(newAPI(t, "y", "/y/z")))

	assert.Len(t, snap, 1)
	assert.Len(t, table.Snapshot(), 2)
}

func TestTable_NilAPI(t *testing.T) {
	table := New(logging.NewNopLogger())
	assert.ErrorIs(t, table.Add(nil), ErrNilAPI)
}

// A reader looking up a name that a writer keeps removing and re-adding in one
// update must never find it missing, and must never see a duplicate.
func TestTable_AtomicRedeployUnderConcurrency(t *testing.T) {
	table := New(logging.NewNopLogger())
	require.NoError(t, table.Add(newAPI(t, "other", "/other")))
	target := newAPI(t, "target", "/target")
	require.NoError(t, table.Add(target))

	const readers = 8
	const lookups = 2000

	stop := make(chan struct{})
	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			err := table.Update(func(tx *Tx) error {
				tx.Remove("target")
				runtime.Gosched()
				return tx.Add(target)
			})
			if err != nil {
				t.Errorf("redeploy failed: %v", err)
				return
			}
			runtime.Gosched()
		}
	}()

	var wg sync.WaitGroup
	failures := make(chan string, readers)
	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < lookups; i++ {
				snap := table.Snapshot()
				count := 0
				for _, a := range snap {
					if a.Name == "target" {
						count++
					}
				}
				if count != 1 || len(snap) != 2 {
					failures <- "inconsistent snapshot"
					return
				}
				if _, ok := table.Get("target"); !ok {
					failures <- "target missing"
					return
				}
				runtime.Gosched()
			}
		}()
	}

	wg.Wait()
	close(stop)
	writer.Wait()
	close(failures)

	for f := range failures {
		t.Error(f)
	}
}
