// Package deployer turns API definition documents into entries of the API
// table. It loads definition directories, deploys and undeploys single APIs
// for the admin API and cluster peers, and keeps a directory in sync through
// Watcher.
package deployer

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"sync"

	"github.com/samber/lo"

	"mediation-router/internal/apitable"
	"mediation-router/internal/common/errors"
	"mediation-router/internal/common/logging"
)

// Notifier is told about local deployment changes, e.g. to replicate them to
// other nodes
type Notifier interface {
	Deployed(def *Definition)
	Undeployed(name string)
}

// Observer records deploy operations. operation is one of "deploy",
// "undeploy" or "load"; status is "success" or "error".
type Observer interface {
	ObserveDeploy(operation, status string)
	SetDeployed(count int)
}

// LoadResult summarises a directory load or reload
type LoadResult struct {
	Deployed   []string         `json:"deployed"`
	Undeployed []string         `json:"undeployed,omitempty"`
	Unchanged  []string         `json:"unchanged,omitempty"`
	Failed     map[string]error `json:"-"`
}

// Deployer owns the definitions behind an API table
type Deployer struct {
	table    *apitable.Table
	logger   logging.Logger
	observer Observer

	mu          sync.Mutex
	notifier    Notifier
	definitions map[string]*Definition
	// files maps a definition file to the API it deployed
	files map[string]string
}

// Option configures a Deployer
type Option func(*Deployer)

// WithObserver registers a deploy observer
func WithObserver(observer Observer) Option {
	return func(d *Deployer) {
		d.observer = observer
	}
}

// WithNotifier registers a notifier at construction time
func WithNotifier(notifier Notifier) Option {
	return func(d *Deployer) {
		d.notifier = notifier
	}
}

// New creates a deployer writing to table
func New(table *apitable.Table, logger logging.Logger, opts ...Option) *Deployer {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	d := &Deployer{
		table:       table,
		logger:      logger.WithFields(logging.Field{Key: "component", Value: "deployer"}),
		definitions: make(map[string]*Definition),
		files:       make(map[string]string),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetNotifier replaces the notifier. The cluster syncer needs the deployer
// before it exists, so it is registered afterwards.
func (d *Deployer) SetNotifier(notifier Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifier = notifier
}

// Table returns the table the deployer writes to
func (d *Deployer) Table() *apitable.Table {
	return d.table
}

// Deploy validates def and deploys it, replacing a deployed API of the same
// name in place. Notifiers are told on success.
func (d *Deployer) Deploy(def *Definition) error {
	return d.deploy(def, true)
}

// Apply deploys def like Deploy without notifying. It is used for changes
// received from other nodes.
func (d *Deployer) Apply(def *Definition) error {
	return d.deploy(def, false)
}

// Undeploy removes the named API. It returns a not found error when the API is
// not deployed.
func (d *Deployer) Undeploy(name string) error {
	return d.undeploy(name, true)
}

// ApplyUndeploy removes the named API without notifying
func (d *Deployer) ApplyUndeploy(name string) error {
	return d.undeploy(name, false)
}

// Definition returns a copy of the deployed definition for name
func (d *Deployer) Definition(name string) (*Definition, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	def, ok := d.definitions[name]
	if !ok {
		return nil, false
	}
	return def.clone(), true
}

// Definitions returns copies of every deployed definition in dispatch order
func (d *Deployer) Definitions() []*Definition {
	d.mu.Lock()
	defer d.mu.Unlock()
	return lo.FilterMap(d.table.Names(), func(name string, _ int) (*Definition, bool) {
		def, ok := d.definitions[name]
		if !ok {
			return nil, false
		}
		return def.clone(), true
	})
}

// Reorder re-sorts the table
func (d *Deployer) Reorder() {
	d.table.Reorder()
}

func (d *Deployer) deploy(def *Definition, notify bool) error {
	if def == nil {
		return errors.ValidationError("api definition cannot be nil")
	}
	a, err := def.Build()
	if err != nil {
		d.observe("deploy", err)
		return err
	}

	d.mu.Lock()
	if err := d.table.Add(a); err != nil {
		d.mu.Unlock()
		d.observe("deploy", err)
		return err
	}
	d.definitions[a.Name] = def.clone()
	notifier := d.notifier
	d.mu.Unlock()

	d.observe("deploy", nil)
	d.logger.Info("Deployed API",
		logging.String("api", a.Name),
		logging.String("context", a.EffectiveContext()),
		logging.String("version", a.Version.String()),
		logging.Int("resources", len(a.Resources)),
	)
	if notify && notifier != nil {
		notifier.Deployed(def.clone())
	}
	return nil
}

func (d *Deployer) undeploy(name string, notify bool) error {
	d.mu.Lock()
	if !d.table.Remove(name) {
		d.mu.Unlock()
		err := errors.NotFoundError("api").WithContext("name", name)
		d.observe("undeploy", err)
		return err
	}
	delete(d.definitions, name)
	for file, deployed := range d.files {
		if deployed == name {
			delete(d.files, file)
		}
	}
	notifier := d.notifier
	d.mu.Unlock()

	d.observe("undeploy", nil)
	d.logger.Info("Undeployed API", logging.String("api", name))
	if notify && notifier != nil {
		notifier.Undeployed(name)
	}
	return nil
}

// LoadDir deploys every definition file in dir in one table update and sorts
// the table once at the end. A file that fails to parse, validate or deploy is
// logged and reported in the result; the others are deployed. Directory loads
// are node-local and never reach the notifier.
func (d *Deployer) LoadDir(dir string) (*LoadResult, error) {
	parsed, result, err := d.readDir(dir)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	_ = d.table.Update(func(tx *apitable.Tx) error {
		for _, file := range sortedKeys(parsed) {
			def := parsed[file]
			a, _ := def.build()
			if err := tx.AddDeferred(a); err != nil {
				result.Failed[file] = err
				continue
			}
			d.definitions[a.Name] = def
			d.files[file] = a.Name
			result.Deployed = append(result.Deployed, a.Name)
		}
		tx.Reorder()
		return nil
	})
	d.mu.Unlock()

	d.finishLoad("load", dir, result)
	return result, nil
}

// Reload brings the table in line with dir: new and changed files are
// (re)deployed, APIs whose file disappeared are undeployed, and unchanged
// files are left alone. APIs deployed through other means are untouched.
// All changes are published as one table update.
func (d *Deployer) Reload(dir string) (*LoadResult, error) {
	parsed, result, err := d.readDir(dir)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	_ = d.table.Update(func(tx *apitable.Tx) error {
		for file, name := range d.files {
			if _, ok := parsed[file]; ok {
				continue
			}
			if _, failed := result.Failed[file]; failed {
				continue
			}
			if tx.Remove(name) {
				delete(d.definitions, name)
				result.Undeployed = append(result.Undeployed, name)
			}
			delete(d.files, file)
		}

		for _, file := range sortedKeys(parsed) {
			def := parsed[file]
			if current, ok := d.definitions[def.Name]; ok && reflect.DeepEqual(current, def) {
				d.files[file] = def.Name
				result.Unchanged = append(result.Unchanged, def.Name)
				continue
			}
			a, _ := def.build()

			// a renamed API takes over its predecessor's slot only once it deploys
			previous, renamed := d.files[file]
			renamed = renamed && previous != def.Name
			_, hadPrevious := tx.Get(previous)

			var err error
			if renamed {
				err = tx.Replace(previous, a)
			} else {
				err = tx.Add(a)
			}
			if err != nil {
				result.Failed[file] = err
				continue
			}
			if renamed {
				delete(d.definitions, previous)
				if hadPrevious {
					result.Undeployed = append(result.Undeployed, previous)
				}
			}
			d.definitions[a.Name] = def
			d.files[file] = a.Name
			result.Deployed = append(result.Deployed, a.Name)
		}
		return nil
	})
	d.mu.Unlock()

	d.finishLoad("reload", dir, result)
	return result, nil
}

// readDir parses and validates every definition file in dir
func (d *Deployer) readDir(dir string) (map[string]*Definition, *LoadResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, errors.ConfigError("failed to read api definitions directory").
			WithCause(err).
			WithContext("dir", dir)
	}

	result := &LoadResult{Failed: make(map[string]error)}
	parsed := make(map[string]*Definition)
	names := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !IsDefinitionFile(entry.Name()) {
			continue
		}
		file := filepath.Join(dir, entry.Name())

		def, err := ParseFile(file)
		if err == nil {
			err = def.Validate()
		}
		if err == nil {
			if other, dup := names[def.Name]; dup {
				err = errors.ConfigError(fmt.Sprintf("api %s is already defined in %s", def.Name, filepath.Base(other)))
			}
		}
		if err != nil {
			result.Failed[file] = err
			continue
		}
		names[def.Name] = file
		parsed[file] = def
	}
	return parsed, result, nil
}

func (d *Deployer) finishLoad(operation, dir string, result *LoadResult) {
	for _, file := range sortedKeys(result.Failed) {
		d.logger.Error("Skipping invalid API definition", result.Failed[file],
			logging.String("file", file),
		)
	}
	status := error(nil)
	if len(result.Failed) > 0 {
		status = fmt.Errorf("%d definitions failed", len(result.Failed))
	}
	d.observe(operation, status)

	d.logger.Info("Loaded API definitions",
		logging.String("dir", dir),
		logging.Int("deployed", len(result.Deployed)),
		logging.Int("undeployed", len(result.Undeployed)),
		logging.Int("unchanged", len(result.Unchanged)),
		logging.Int("failed", len(result.Failed)),
	)
}

func (d *Deployer) observe(operation string, err error) {
	if d.observer == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	d.observer.ObserveDeploy(operation, status)
	d.observer.SetDeployed(d.table.Len())
}

// ValidateDir checks every definition file in dir without deploying anything,
// including conflicts between files. It returns the failures by file and the
// number of files checked.
func ValidateDir(dir string) (map[string]error, int, error) {
	d := New(apitable.New(logging.NewNopLogger()), logging.NewNopLogger())
	parsed, result, err := d.readDir(dir)
	if err != nil {
		return nil, 0, err
	}

	checked := len(parsed) + len(result.Failed)
	scratch := apitable.New(logging.NewNopLogger())
	for _, file := range sortedKeys(parsed) {
		a, _ := parsed[file].build()
		if err := scratch.AddDeferred(a); err != nil {
			result.Failed[file] = err
		}
	}
	return result.Failed, checked, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
