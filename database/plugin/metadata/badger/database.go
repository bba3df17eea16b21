// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aipx/aipx/database/plugin"
	"github.com/aipx/aipx/database/types"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/prometheus/client_golang/prometheus"
)

const gcInterval = 5 * time.Minute

// badgerTxn wraps a badger transaction and implements types.Txn
type badgerTxn struct {
	store    *MetadataStoreBadger
	tx       *badger.Txn
	finished bool
}

func newBadgerTxn(store *MetadataStoreBadger, tx *badger.Txn) *badgerTxn {
	return &badgerTxn{store: store, tx: tx}
}

// validateTxn validates a types.Txn for this store and returns the
// underlying *badgerTxn if valid.
func (d *MetadataStoreBadger) validateTxn(txn types.Txn) (*badgerTxn, error) {
	if txn == nil {
		return nil, types.ErrNilTxn
	}
	badgerTxn, ok := txn.(*badgerTxn)
	if !ok {
		return nil, types.ErrTxnWrongType
	}
	if badgerTxn.store != d {
		return nil, errors.New("transaction from different store")
	}
	if badgerTxn.finished {
		return nil, types.ErrTxnFinished
	}
	if badgerTxn.tx == nil {
		return nil, types.ErrNoStoreAvailable
	}
	return badgerTxn, nil
}

func (t *badgerTxn) Commit() error {
	if t.finished {
		return nil
	}
	t.finished = true
	if t.tx == nil {
		return nil
	}
	return classify(t.tx.Commit())
}

func (t *badgerTxn) Rollback() error {
	if t.finished {
		return nil
	}
	if t.tx != nil {
		t.tx.Discard()
	}
	t.finished = true
	return nil
}

// MetadataStoreBadger stores metadata in badger. Values are JSON encoded and
// keys are laid out so prefix scans return rows in ID order
type MetadataStoreBadger struct {
	promRegistry   prometheus.Registerer
	collectors     []prometheus.Collector
	db             *badger.DB
	logger         *slog.Logger
	gcTicker       *time.Ticker
	gcStopCh       chan struct{}
	gcWg           sync.WaitGroup
	dataDir        string
	blockCacheSize uint64
	indexCacheSize uint64
	gcEnabled      bool
}

// NewWithOptions creates a new store with options. The database is opened
// by Start
func NewWithOptions(opts ...BadgerOptionFunc) (*MetadataStoreBadger, error) {
	db := &MetadataStoreBadger{
		blockCacheSize: DefaultBlockCacheSize,
		indexCacheSize: DefaultIndexCacheSize,
	}
	for _, opt := range opts {
		opt(db)
	}
	if db.logger == nil {
		db.logger = plugin.DiscardLogger()
	}
	return db, nil
}

// Start implements the plugin.Plugin interface
func (d *MetadataStoreBadger) Start() error {
	if d.db != nil {
		return nil
	}
	var badgerOpts badger.Options
	if d.dataDir == "" {
		badgerOpts = badger.DefaultOptions("").
			WithInMemory(true)
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(d.dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(d.dataDir, 0o755); err != nil {
				return fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		badgerOpts = badger.DefaultOptions(filepath.Join(d.dataDir, "metadata")).
			WithBlockCacheSize(int64(d.blockCacheSize)). //nolint:gosec // controlled by configuration
			WithIndexCacheSize(int64(d.indexCacheSize)). //nolint:gosec // controlled by configuration
			WithCompression(options.Snappy)
	}
	badgerOpts = badgerOpts.
		WithLogger(&plugin.PrintfLogger{Logger: d.logger}).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING)
	metadataDb, err := badger.Open(badgerOpts)
	if err != nil {
		return err
	}
	d.db = metadataDb
	if d.promRegistry != nil {
		d.registerMetrics()
	}
	if d.gcEnabled && d.dataDir != "" {
		d.gcTicker = time.NewTicker(gcInterval)
		d.gcStopCh = make(chan struct{})
		d.gcWg.Add(1)
		go d.valueLogGc(d.gcTicker, d.gcStopCh)
	}
	return nil
}

func (d *MetadataStoreBadger) registerMetrics() {
	sizeGauge := func(name, help string, lsm bool) prometheus.Collector {
		return prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: name,
				Help: help,
			},
			func() float64 {
				lsmSize, vlogSize := d.db.Size()
				if lsm {
					return float64(lsmSize)
				}
				return float64(vlogSize)
			},
		)
	}
	for _, c := range []prometheus.Collector{
		sizeGauge("aipx_metadata_badger_lsm_size_bytes", "badger LSM tree size", true),
		sizeGauge("aipx_metadata_badger_vlog_size_bytes", "badger value log size", false),
	} {
		if err := d.promRegistry.Register(c); err != nil {
			d.logger.Warn("failed to register badger metric", "error", err)
			continue
		}
		d.collectors = append(d.collectors, c)
	}
}

func (d *MetadataStoreBadger) valueLogGc(t *time.Ticker, stop <-chan struct{}) {
	defer d.gcWg.Done()
	for {
		select {
		case <-t.C:
			for {
				if err := d.db.RunValueLogGC(0.5); err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						d.logger.Warn(
							fmt.Sprintf("metadata DB: GC failure: %s", err),
						)
					}
					break
				}
			}
		case <-stop:
			return
		}
	}
}

// Stop implements the plugin.Plugin interface
func (d *MetadataStoreBadger) Stop() error {
	return d.Close()
}

// Close stops GC and closes the database
func (d *MetadataStoreBadger) Close() error {
	if d.gcTicker != nil {
		d.gcTicker.Stop()
		close(d.gcStopCh)
		d.gcWg.Wait()
		d.gcTicker = nil
		d.gcStopCh = nil
	}
	for _, c := range d.collectors {
		d.promRegistry.Unregister(c)
	}
	d.collectors = nil
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

// DB returns the database handle
func (d *MetadataStoreBadger) DB() *badger.DB {
	return d.db
}

// Transaction starts a new badger transaction. The context is not used, since
// badger transactions are not cancellable
func (d *MetadataStoreBadger) Transaction(_ context.Context, readWrite bool) types.Txn {
	return newBadgerTxn(d, d.db.NewTransaction(readWrite))
}

func (d *MetadataStoreBadger) view(txn types.Txn, fn func(*badger.Txn) error) error {
	if txn == nil {
		return d.db.View(fn)
	}
	bt, err := d.validateTxn(txn)
	if err != nil {
		return err
	}
	return fn(bt.tx)
}

func (d *MetadataStoreBadger) update(txn types.Txn, fn func(*badger.Txn) error) error {
	if txn == nil {
		return classify(d.db.Update(fn))
	}
	bt, err := d.validateTxn(txn)
	if err != nil {
		return err
	}
	return classify(fn(bt.tx))
}

func classify(err error) error {
	if errors.Is(err, badger.ErrConflict) {
		return types.NewConflictError(err)
	}
	return err
}

// getJSON decodes the value at key into dest. It reports false when the key
// does not exist
func getJSON(tx *badger.Txn, key []byte, dest any) (bool, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, dest)
	}); err != nil {
		return false, err
	}
	return true, nil
}

func jsonUnmarshal(val []byte, dest any) error {
	return json.Unmarshal(val, dest)
}

func setJSON(tx *badger.Txn, key []byte, src any) error {
	val, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return tx.Set(key, val)
}

func exists(tx *badger.Txn, key []byte) (bool, error) {
	_, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func getUint64(tx *badger.Txn, key []byte) (uint64, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, err
	}
	var ret uint64
	err = item.Value(func(val []byte) error {
		ret = bytesToUint64(val)
		return nil
	})
	return ret, err
}

// nextID increments the named counter. Reading the counter inside the
// transaction makes concurrent allocations conflict on commit
func nextID(tx *badger.Txn, counterKey string) (uint64, error) {
	cur, err := getUint64(tx, []byte(counterKey))
	if err != nil {
		return 0, err
	}
	next := cur + 1
	if err := tx.Set([]byte(counterKey), uint64ToBytes(next)); err != nil {
		return 0, err
	}
	return next, nil
}
