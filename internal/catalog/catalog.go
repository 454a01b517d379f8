// Package catalog records deployed templates in the capability catalog.
//
// The catalog is persisted as a single JSON file:
//
//	<dir>/catalog.json
//	├── records   ← owner/name -> registered deployment
//	└── pending   ← registrations deferred after a failure, retried later
//
// Registration is an upsert keyed by owner/name; re-registering keeps the
// record id and replaces the deployment it points at.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Errors for catalog operations.
var (
	ErrNotFound         = errors.New("record not found")
	ErrInvalidName      = errors.New("invalid name: must be alphanumeric with hyphens/underscores")
	ErrCatalogCorrupted = errors.New("catalog file corrupted")
)

// namePattern validates owner and template names.
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// Record is one cataloged deployment.
type Record struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Owner        string    `json:"owner"`
	Description  string    `json:"description,omitempty"`
	Repository   string    `json:"repository,omitempty"`
	ReviewURL    string    `json:"review_url,omitempty"`
	DeploymentID string    `json:"deployment_id"`
	Location     string    `json:"location,omitempty"`
	Degraded     bool      `json:"degraded,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Key returns owner/name.
func (r *Record) Key() string { return r.Owner + "/" + r.Name }

// Pending is a deferred registration.
type Pending struct {
	Record   Record    `json:"record"`
	Reason   string    `json:"reason"`
	Attempts int       `json:"attempts"`
	QueuedAt time.Time `json:"queued_at"`
}

// Catalog registers deployment records.
type Catalog interface {
	Register(ctx context.Context, rec Record) (*Record, error)
}

// Queue holds registrations for a later retry.
type Queue interface {
	Defer(ctx context.Context, rec Record, reason string) error
}

// ValidateName checks that a name is safe to use as a catalog key.
func ValidateName(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	if len(name) > 255 {
		return fmt.Errorf("%w: name too long (max 255)", ErrInvalidName)
	}
	if !namePattern.MatchString(name) {
		return ErrInvalidName
	}
	return nil
}

func validateRecord(rec Record) error {
	if err := ValidateName(rec.Owner); err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	if err := ValidateName(rec.Name); err != nil {
		return fmt.Errorf("name: %w", err)
	}
	if rec.DeploymentID == "" {
		return fmt.Errorf("deployment id is required")
	}
	return nil
}

type fileData struct {
	Version int                 `json:"version"`
	Records map[string]*Record  `json:"records"`
	Pending map[string]*Pending `json:"pending"`
}

// File is a JSON-file catalog with a pending queue.
type File struct {
	mu       sync.RWMutex
	filePath string
	data     *fileData
}

var (
	_ Catalog = (*File)(nil)
	_ Queue   = (*File)(nil)
)

// NewFile opens the catalog stored in dir, creating it if needed.
func NewFile(dir string) (*File, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, ".config", "launchpad", "catalog")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}

	c := &File{
		filePath: filepath.Join(dir, "catalog.json"),
		data: &fileData{
			Version: 1,
			Records: make(map[string]*Record),
			Pending: make(map[string]*Pending),
		},
	}
	if err := c.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	return c, nil
}

// Register upserts rec and removes any pending registration for it.
func (c *File) Register(ctx context.Context, rec Record) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateRecord(rec); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	key := rec.Key()
	if existing, ok := c.data.Records[key]; ok {
		rec.ID = existing.ID
		rec.RegisteredAt = existing.RegisteredAt
	} else {
		rec.ID = uuid.New().String()
		rec.RegisteredAt = now
	}
	rec.UpdatedAt = now

	stored := rec
	c.data.Records[key] = &stored
	delete(c.data.Pending, key)

	if err := c.save(); err != nil {
		return nil, err
	}
	out := stored
	return &out, nil
}

// Defer queues rec for a later retry. Deferring the same owner/name again
// replaces the queued record and counts another attempt.
func (c *File) Defer(ctx context.Context, rec Record, reason string) error {
	if err := validateRecord(rec); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := rec.Key()
	p, ok := c.data.Pending[key]
	if !ok {
		p = &Pending{QueuedAt: time.Now().UTC()}
		c.data.Pending[key] = p
	}
	p.Record = rec
	p.Reason = reason
	p.Attempts++
	return c.save()
}

// Get returns the record for owner/name.
func (c *File) Get(owner, name string) (*Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.data.Records[owner+"/"+name]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rec
	return &out, nil
}

// List returns every record sorted by owner/name.
func (c *File) List() []Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Record, 0, len(c.data.Records))
	for _, rec := range c.data.Records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Pending returns the queued registrations, oldest first.
func (c *File) Pending() []Pending {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Pending, 0, len(c.data.Pending))
	for _, p := range c.data.Pending {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].QueuedAt.Equal(out[j].QueuedAt) {
			return out[i].Record.Key() < out[j].Record.Key()
		}
		return out[i].QueuedAt.Before(out[j].QueuedAt)
	})
	return out
}

// RetryPending registers every queued record with dst, or with c itself when
// dst is nil. Records dst accepts leave the queue; the rest stay queued with
// their attempt count raised. It returns how many were registered and the
// joined errors of the rest.
func (c *File) RetryPending(ctx context.Context, dst Catalog) (int, error) {
	if dst == nil {
		dst = c
	}
	var (
		registered int
		errs       []error
	)
	for _, p := range c.Pending() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := dst.Register(ctx, p.Record); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Record.Key(), err))
			if deferErr := c.Defer(ctx, p.Record, err.Error()); deferErr != nil {
				errs = append(errs, deferErr)
			}
			continue
		}
		c.dropPending(p.Record.Key())
		registered++
	}
	return registered, errors.Join(errs...)
}

func (c *File) dropPending(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.data.Pending[key]; !ok {
		return
	}
	delete(c.data.Pending, key)
	_ = c.save()
}

// Path returns the catalog file path.
func (c *File) Path() string {
	return c.filePath
}

// load reads the catalog from disk.
func (c *File) load() error {
	data, err := os.ReadFile(c.filePath)
	if err != nil {
		return err
	}

	var fd fileData
	if err := json.Unmarshal(data, &fd); err != nil {
		return fmt.Errorf("%w: %v", ErrCatalogCorrupted, err)
	}
	if fd.Records == nil {
		fd.Records = make(map[string]*Record)
	}
	if fd.Pending == nil {
		fd.Pending = make(map[string]*Pending)
	}
	c.data = &fd
	return nil
}

// save writes the catalog to disk atomically.
func (c *File) save() error {
	data, err := json.MarshalIndent(c.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}

	tmpPath := c.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write catalog: %w", err)
	}
	if err := os.Rename(tmpPath, c.filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename catalog: %w", err)
	}
	return nil
}
