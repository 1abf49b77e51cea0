// Package apitable holds the ordered set of deployed APIs.
//
// The table is copy-on-write: writers serialise on a mutex, build a new sorted
// slice and publish it through an atomic pointer. Readers load the current
// snapshot without locking and always observe a complete, consistently ordered
// table. A mutation that returns before a Snapshot call is visible to it.
//
// Order is by descending number of non-empty segments in each API's effective
// context. Ties keep insertion order; redeploying a name keeps its original
// position among equals.
package apitable

import (
	stderrors "errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/samber/lo"

	"mediation-router/internal/api"
	"mediation-router/internal/common/errors"
	"mediation-router/internal/common/logging"
)

// ErrAmbiguousAPI is wrapped by the error returned when a different API already
// serves the same effective context and version
var ErrAmbiguousAPI = stderrors.New("ambiguous api context and version")

// ErrNilAPI is returned when a nil API is added
var ErrNilAPI = stderrors.New("api cannot be nil")

type entry struct {
	api *api.API
	seq uint64
}

type snapshot struct {
	entries []entry
	apis    []*api.API
	sorted  bool
}

func newSnapshot(entries []entry, sorted bool) *snapshot {
	return &snapshot{
		entries: entries,
		apis:    lo.Map(entries, func(e entry, _ int) *api.API { return e.api }),
		sorted:  sorted,
	}
}

// Table is the concurrently readable, ordered collection of deployed APIs
type Table struct {
	mu      sync.Mutex
	current atomic.Pointer[snapshot]
	nextSeq uint64
	logger  logging.Logger
}

// New creates an empty table
func New(logger logging.Logger) *Table {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	t := &Table{logger: logger.WithFields(logging.Field{Key: "component", Value: "apitable"})}
	t.current.Store(newSnapshot(nil, true))
	return t
}

// Snapshot returns the APIs in dispatch order. The slice is shared between
// readers and must not be modified.
func (t *Table) Snapshot() []*api.API {
	return t.current.Load().apis
}

// Sorted reports whether the published order reflects every deferred insert
func (t *Table) Sorted() bool {
	return t.current.Load().sorted
}

// Get returns the deployed API with the given name
func (t *Table) Get(name string) (*api.API, bool) {
	for _, e := range t.current.Load().entries {
		if e.api.Name == name {
			return e.api, true
		}
	}
	return nil, false
}

// Len returns the number of deployed APIs
func (t *Table) Len() int {
	return len(t.current.Load().entries)
}

// Names returns the deployed API names in dispatch order
func (t *Table) Names() []string {
	return lo.Map(t.Snapshot(), func(a *api.API, _ int) string { return a.Name })
}

// Add deploys a, replacing any API with the same name, and publishes the
// re-sorted table.
func (t *Table) Add(a *api.API) error {
	return t.Update(func(tx *Tx) error { return tx.Add(a) })
}

// AddDeferred deploys a at the end of the table without re-sorting. It is meant
// for bulk loads that finish with Reorder.
func (t *Table) AddDeferred(a *api.API) error {
	return t.Update(func(tx *Tx) error { return tx.AddDeferred(a) })
}

// Remove undeploys the named API. It reports whether the API was deployed.
func (t *Table) Remove(name string) bool {
	removed := false
	_ = t.Update(func(tx *Tx) error {
		removed = tx.Remove(name)
		return nil
	})
	return removed
}

// Reorder re-sorts the table by specificity
func (t *Table) Reorder() {
	_ = t.Update(func(tx *Tx) error {
		tx.Reorder()
		return nil
	})
}

// Update runs fn against a private copy of the table and publishes the result as
// one snapshot. If fn returns an error nothing is published.
func (t *Table) Update(fn func(tx *Tx) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.current.Load()
	tx := &Tx{
		entries: slices.Clone(cur.entries),
		sorted:  cur.sorted,
		nextSeq: t.nextSeq,
	}
	if err := fn(tx); err != nil {
		return err
	}
	if !tx.dirty {
		return nil
	}

	t.nextSeq = tx.nextSeq
	t.current.Store(newSnapshot(tx.entries, tx.sorted))
	t.logger.Debug("API table published",
		logging.Int("apis", len(tx.entries)),
		logging.Bool("sorted", tx.sorted),
	)
	return nil
}

// Tx is a pending set of table mutations, valid only inside Update
type Tx struct {
	entries []entry
	sorted  bool
	dirty   bool
	nextSeq uint64
}

// Add deploys a and re-sorts. Redeploying a name keeps its insertion sequence.
func (tx *Tx) Add(a *api.API) error {
	if err := tx.put(a); err != nil {
		return err
	}
	tx.Reorder()
	return nil
}

// AddDeferred deploys a without re-sorting
func (tx *Tx) AddDeferred(a *api.API) error {
	if err := tx.put(a); err != nil {
		return err
	}
	tx.sorted = false
	return nil
}

// Remove undeploys the named API
func (tx *Tx) Remove(name string) bool {
	i := tx.index(name)
	if i < 0 {
		return false
	}
	tx.entries = slices.Delete(tx.entries, i, i+1)
	tx.dirty = true
	return true
}

// Get returns the named API as seen inside the transaction
func (tx *Tx) Get(name string) (*api.API, bool) {
	if i := tx.index(name); i >= 0 {
		return tx.entries[i].api, true
	}
	return nil, false
}

// Reorder sorts by descending specificity, then by insertion sequence
func (tx *Tx) Reorder() {
	slices.SortStableFunc(tx.entries, func(a, b entry) int {
		if sa, sb := a.api.Specificity(), b.api.Specificity(); sa != sb {
			return sb - sa
		}
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		default:
			return 0
		}
	})
	tx.sorted = true
	tx.dirty = true
}

func (tx *Tx) put(a *api.API) error {
	if a == nil {
		return ErrNilAPI
	}
	if err := tx.conflict(a, a.Name); err != nil {
		return err
	}

	if i := tx.index(a.Name); i >= 0 {
		tx.entries[i].api = a
	} else {
		tx.entries = append(tx.entries, entry{api: a, seq: tx.nextSeq})
		tx.nextSeq++
	}
	tx.dirty = true
	return nil
}

// Replace deploys a in place of the API named oldName, keeping its position.
// On error the transaction is left as it was.
func (tx *Tx) Replace(oldName string, a *api.API) error {
	if a == nil {
		return ErrNilAPI
	}
	i := tx.index(oldName)
	if i < 0 || oldName == a.Name {
		return tx.Add(a)
	}
	if err := tx.conflict(a, a.Name, oldName); err != nil {
		return err
	}

	if j := tx.index(a.Name); j >= 0 {
		tx.entries[j].api = a
		tx.entries = slices.Delete(tx.entries, i, i+1)
	} else {
		tx.entries[i].api = a
	}
	tx.Reorder()
	return nil
}

// conflict reports an API other than the ignored names that a would make
// ambiguous
func (tx *Tx) conflict(a *api.API, ignore ...string) error {
	key := a.Key()
	for _, e := range tx.entries {
		if slices.Contains(ignore, e.api.Name) || e.api.Key() != key {
			continue
		}
		return errors.ConfigError(fmt.Sprintf("api %s conflicts with deployed api %s", a.Name, e.api.Name)).
			WithCause(ErrAmbiguousAPI).
			WithContext("context", a.EffectiveContext()).
			WithContext("version", a.Version.String())
	}
	return nil
}

func (tx *Tx) index(name string) int {
	return slices.IndexFunc(tx.entries, func(e entry) bool { return e.api.Name == name })
}
