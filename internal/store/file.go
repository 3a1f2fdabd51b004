package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/tiffix/order-calendar/internal/calendar"
	"github.com/tiffix/order-calendar/internal/logger"
)

// Constants
const (
	DefaultDataFile = "orders.json"
	BackupDir       = "backup"
	BackupSuffix    = ".backup"
	TmpSuffix       = ".tmp.json"
	FilePermissions = 0644

	MetadataCreatedAt = "created_at"
	MetadataSource    = "source"
)

var (
	ErrNotFound         = errors.New("order not found")
	ErrExists           = errors.New("order already exists")
	ErrNoPendingChanges = errors.New("no temporary changes")
	ErrTerminalStatus   = errors.New("order is in a terminal status")
	ErrIndexNotLoaded   = errors.New("order data not loaded")
)

// OrderFile is the on-disk layout of the order index.
type OrderFile struct {
	Orders   []calendar.Order  `json:"orders"`
	Metadata map[string]string `json:"metadata"`
}

// File is a JSON-file order index. Edits land in a tmp file until Commit.
type File struct {
	path string
	log  *logger.Logger

	mu   sync.RWMutex
	data *OrderFile
}

// NewFile returns a store backed by path. Nothing is read until Load or LoadOrSeed.
func NewFile(path string, log *logger.Logger) *File {
	if path == "" {
		path = DefaultDataFile
	}
	return &File{path: path, log: log.With("store", "file", "path", path)}
}

// Path is the main data file.
func (f *File) Path() string { return f.path }

func (f *File) tmpPath() string { return f.path + TmpSuffix }

// Load reads the main data file.
func (f *File) Load() error {
	return f.loadFrom(f.path)
}

// LoadWithTmpCheck prefers unsaved edits from the tmp file when one exists.
func (f *File) LoadWithTmpCheck() error {
	if _, err := os.Stat(f.tmpPath()); err == nil {
		f.log.Warn("found temporary order file, loading unsaved changes", "tmp", f.tmpPath())
		return f.loadFrom(f.tmpPath())
	}
	return f.Load()
}

// LoadOrSeed loads the data file, creating it from seed orders when it does not exist yet.
func (f *File) LoadOrSeed(seed []calendar.Order, source string, withTmp bool) error {
	if _, err := os.Stat(f.path); errors.Is(err, os.ErrNotExist) {
		if err := f.Replace(seed, source); err != nil {
			return err
		}
		f.log.Info("order file created from seed", "orders", len(seed), "source", source)
	}
	if withTmp {
		return f.LoadWithTmpCheck()
	}
	return f.Load()
}

// Replace writes orders as the new main data file.
func (f *File) Replace(orders []calendar.Order, source string) error {
	if _, err := calendar.NewIndex(orders); err != nil {
		return err
	}
	data := &OrderFile{
		Orders: append([]calendar.Order(nil), orders...),
		Metadata: map[string]string{
			MetadataCreatedAt: time.Now().UTC().Format(time.RFC3339),
			MetadataSource:    source,
		},
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = data
	return f.saveLocked()
}

func (f *File) loadFrom(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var data OrderFile
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	for _, o := range data.Orders {
		if err := o.Validate(); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	if _, err := calendar.NewIndex(data.Orders); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if data.Metadata == nil {
		data.Metadata = make(map[string]string)
	}

	f.mu.Lock()
	f.data = &data
	f.mu.Unlock()
	return nil
}

// Range implements calendar.Source. Orders come back ordered by date; orders on
// the same date keep their file order.
func (f *File) Range(_ context.Context, q calendar.Query) ([]calendar.Order, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.data == nil {
		return nil, ErrIndexNotLoaded
	}

	out := make([]calendar.Order, 0)
	for _, o := range f.data.Orders {
		if q.Match(o) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ScheduledDate < out[j].ScheduledDate
	})
	return q.Page(out), nil
}

// Add appends a new order and auto-saves to the tmp file.
func (f *File) Add(o calendar.Order) error {
	if err := o.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data == nil {
		return ErrIndexNotLoaded
	}
	if f.findLocked(o.ID) >= 0 {
		return fmt.Errorf("%w: %s", ErrExists, o.ID)
	}
	f.data.Orders = append(f.data.Orders, o)
	return f.saveTmpLocked()
}

// Delete removes an order.
func (f *File) Delete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data == nil {
		return ErrIndexNotLoaded
	}
	i := f.findLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	f.data.Orders = append(f.data.Orders[:i], f.data.Orders[i+1:]...)
	return f.saveTmpLocked()
}

// Move reschedules an order. It goes to the end of its new date's bucket.
func (f *File) Move(id, newDate string) error {
	if _, err := calendar.ParseDate(newDate); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data == nil {
		return ErrIndexNotLoaded
	}
	i := f.findLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	o := f.data.Orders[i]
	if o.ScheduledDate == newDate {
		return nil
	}
	o.ScheduledDate = newDate
	f.data.Orders = append(f.data.Orders[:i], f.data.Orders[i+1:]...)
	f.data.Orders = append(f.data.Orders, o)
	return f.saveTmpLocked()
}

// SetStatus updates the displayed status. Terminal orders are left alone.
func (f *File) SetStatus(id string, status calendar.Status) error {
	if _, err := calendar.ParseStatus(string(status)); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data == nil {
		return ErrIndexNotLoaded
	}
	i := f.findLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if f.data.Orders[i].Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminalStatus, id, f.data.Orders[i].Status)
	}
	f.data.Orders[i].Status = status
	return f.saveTmpLocked()
}

func (f *File) findLocked(id string) int {
	for i, o := range f.data.Orders {
		if o.ID == id {
			return i
		}
	}
	return -1
}

// saveLocked writes the main file through a tmp file (caller must hold lock)
func (f *File) saveLocked() error {
	raw, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	tmp := f.tmpPath()
	if err := os.WriteFile(tmp, raw, FilePermissions); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

// saveTmpLocked auto-saves edits without touching the main file
func (f *File) saveTmpLocked() error {
	raw, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.tmpPath(), raw, FilePermissions)
}

// Commit backs up the main file and promotes the tmp file.
func (f *File) Commit() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tmp := f.tmpPath()
	if _, err := os.Stat(tmp); os.IsNotExist(err) {
		return fmt.Errorf("commit: %w", ErrNoPendingChanges)
	}

	backupDirPath := filepath.Join(filepath.Dir(f.path), BackupDir)
	if err := os.MkdirAll(backupDirPath, 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	if _, err := os.Stat(f.path); err == nil {
		backupFile := filepath.Join(backupDirPath,
			fmt.Sprintf("%d_%s%s", time.Now().UnixNano(), filepath.Base(f.path), BackupSuffix))
		if err := os.Rename(f.path, backupFile); err != nil {
			return fmt.Errorf("failed to create backup: %w", err)
		}
		f.log.Info("backup created", "backup", backupFile)
	}

	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to commit changes: %w", err)
	}
	f.log.Info("changes committed")
	return nil
}

// Revert discards the tmp file and reloads the main file.
func (f *File) Revert() error {
	tmp := f.tmpPath()
	if _, err := os.Stat(tmp); os.IsNotExist(err) {
		return fmt.Errorf("revert: %w", ErrNoPendingChanges)
	}
	if err := os.Remove(tmp); err != nil {
		return fmt.Errorf("failed to remove tmp file: %w", err)
	}
	if err := f.Load(); err != nil {
		return fmt.Errorf("failed to reload orders: %w", err)
	}
	f.log.Info("changes reverted")
	return nil
}

// HasPendingChanges reports whether a tmp file exists.
func (f *File) HasPendingChanges() bool {
	_, err := os.Stat(f.tmpPath())
	return err == nil
}
