// Package datastore is a JSON-file backed key/document store. Writes
// go to memory and are flushed to disk by an autosave loop and on
// Close. File writes are atomic (temp file + rename) and skipped when
// the serialized content is unchanged.
package datastore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Options configures a DataStore.
type Options struct {
	FilePath         string
	AutoSaveInterval time.Duration
	BackupCount      int
	Logger           zerolog.Logger
}

// DefaultOptions returns the options used by New.
func DefaultOptions(filePath string) Options {
	return Options{
		FilePath:         filePath,
		AutoSaveInterval: 10 * time.Second,
		BackupCount:      3,
		Logger:           zerolog.Nop(),
	}
}

// DataStore holds documents in memory keyed by string, mirrored to a
// single JSON file. Every exported method is safe for concurrent use;
// Update is the only compound read-modify-write primitive and runs its
// callback under the store lock.
type DataStore struct {
	mu   sync.RWMutex
	data map[string]json.RawMessage

	file string
	opts Options
	log  zerolog.Logger

	// saveMu serializes flushes and guards lastChecksum; a manual
	// SaveToFile may race the autosave tick.
	saveMu       sync.Mutex
	lastChecksum string

	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeMu sync.Mutex
	closed  bool
}

// New opens (or creates) a store at filePath with default options.
func New(filePath string) (*DataStore, error) {
	return Open(DefaultOptions(filePath))
}

// Open opens (or creates) a store with explicit options.
func Open(opts Options) (*DataStore, error) {
	if opts.FilePath == "" {
		return nil, fmt.Errorf("datastore: file path cannot be empty")
	}
	if opts.AutoSaveInterval <= 0 {
		opts.AutoSaveInterval = 10 * time.Second
	}

	if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0o755); err != nil {
		return nil, fmt.Errorf("datastore: create directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ds := &DataStore{
		data:   make(map[string]json.RawMessage),
		file:   opts.FilePath,
		opts:   opts,
		log:    opts.Logger,
		cancel: cancel,
	}

	switch _, err := os.Stat(opts.FilePath); {
	case os.IsNotExist(err):
		if err := ds.writeFileAtomic([]byte("{}")); err != nil {
			cancel()
			return nil, err
		}
	case err == nil:
		if err := ds.loadFromFile(); err != nil {
			cancel()
			return nil, err
		}
	default:
		cancel()
		return nil, fmt.Errorf("datastore: stat %s: %w", opts.FilePath, err)
	}

	ds.wg.Add(1)
	go ds.autoSave(ctx)

	return ds, nil
}

// Set stores value under key, replacing any previous document.
func (ds *DataStore) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("datastore: marshal %s: %w", key, err)
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.data[key] = raw
	return nil
}

// Get unmarshals the document under key into out. The second return is
// false when the key does not exist.
func (ds *DataStore) Get(key string, out any) (bool, error) {
	ds.mu.RLock()
	raw, ok := ds.data[key]
	ds.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("datastore: unmarshal %s: %w", key, err)
	}
	return true, nil
}

// Update runs fn against the document under key while holding the
// store lock, then persists the result in memory. fn receives the raw
// document (nil when absent) and returns the replacement value. This
// is the atomicity boundary callers get: two concurrent Updates on the
// same key never interleave.
func (ds *DataStore) Update(key string, fn func(raw json.RawMessage) (any, error)) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	next, err := fn(ds.data[key])
	if err != nil {
		return err
	}

	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("datastore: marshal %s: %w", key, err)
	}
	ds.data[key] = raw
	return nil
}

// Delete removes the document under key, if present.
func (ds *DataStore) Delete(key string) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	delete(ds.data, key)
}

// Keys returns all document keys in sorted order.
func (ds *DataStore) Keys() []string {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	keys := make([]string, 0, len(ds.data))
	for k := range ds.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SaveToFile forces an immediate flush to disk.
func (ds *DataStore) SaveToFile() error {
	return ds.saveToFile()
}

// Close stops the autosave loop and performs a final flush.
func (ds *DataStore) Close() error {
	ds.closeMu.Lock()
	if ds.closed {
		ds.closeMu.Unlock()
		return nil
	}
	ds.closed = true
	ds.closeMu.Unlock()

	ds.cancel()
	ds.wg.Wait()
	return ds.saveToFile()
}

// Stats returns basic store statistics for diagnostics commands.
func (ds *DataStore) Stats() map[string]any {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return map[string]any{
		"keys": len(ds.data),
		"file": ds.file,
	}
}

func (ds *DataStore) autoSave(ctx context.Context) {
	defer ds.wg.Done()

	ticker := time.NewTicker(ds.opts.AutoSaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ds.saveToFile(); err != nil {
				ds.log.Error().Err(err).Msg("datastore autosave failed")
			}
		}
	}
}

func (ds *DataStore) saveToFile() error {
	ds.saveMu.Lock()
	defer ds.saveMu.Unlock()

	ds.mu.RLock()
	data, err := json.MarshalIndent(ds.data, "", "  ")
	ds.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("datastore: marshal store: %w", err)
	}

	checksum := checksumOf(data)
	if checksum == ds.lastChecksum {
		return nil
	}

	if ds.opts.BackupCount > 0 {
		if err := ds.createBackup(); err != nil {
			ds.log.Warn().Err(err).Msg("datastore backup failed")
		}
	}

	if err := ds.writeFileAtomic(data); err != nil {
		return err
	}

	ds.lastChecksum = checksum
	return nil
}

func (ds *DataStore) loadFromFile() error {
	raw, err := os.ReadFile(ds.file)
	if err != nil {
		return fmt.Errorf("datastore: read %s: %w", ds.file, err)
	}

	var data map[string]json.RawMessage
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("datastore: %s is not valid JSON: %w", ds.file, err)
	}
	if data == nil {
		data = make(map[string]json.RawMessage)
	}

	ds.mu.Lock()
	ds.data = data
	ds.mu.Unlock()

	ds.saveMu.Lock()
	ds.lastChecksum = checksumOf(raw)
	ds.saveMu.Unlock()
	return nil
}

func (ds *DataStore) writeFileAtomic(data []byte) error {
	tmp := ds.file + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("datastore: write temp file: %w", err)
	}

	f, err := os.OpenFile(tmp, os.O_RDWR, 0o644)
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("datastore: open temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("datastore: sync temp file: %w", err)
	}
	f.Close()

	if err := os.Rename(tmp, ds.file); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("datastore: rename temp file: %w", err)
	}
	return nil
}

func (ds *DataStore) createBackup() error {
	if _, err := os.Stat(ds.file); os.IsNotExist(err) {
		return nil
	}

	backup := fmt.Sprintf("%s.backup.%s", ds.file, time.Now().Format("20060102_150405"))

	src, err := os.Open(ds.file)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(backup)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}

	ds.pruneBackups()
	return nil
}

func (ds *DataStore) pruneBackups() {
	matches, err := filepath.Glob(ds.file + ".backup.*")
	if err != nil || len(matches) <= ds.opts.BackupCount {
		return
	}

	// Backup names embed their timestamp, so lexical order is age order.
	sort.Strings(matches)
	for _, path := range matches[:len(matches)-ds.opts.BackupCount] {
		os.Remove(path)
	}
}

func checksumOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
