package storage

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

	"github.com/maltedev/property-crawler/internal/models"
)

// ErrDuplicateSlug is returned when a listing with the same slug is stored.
var ErrDuplicateSlug = errors.New("duplicate slug")

// FileStore keeps listings in a single JSON document keyed by slug.
type FileStore struct {
	mu       sync.RWMutex
	listings map[string]*models.Listing
	filename string
	nextID   int64
}

func NewFileStore(filename string) (*FileStore, error) {
	fs := &FileStore{
		listings: make(map[string]*models.Listing),
		filename: filename,
	}

	// Load existing data if file exists
	if err := fs.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return fs, nil
}

// InsertListing stores l and persists the whole document. If the write fails
// the listing is removed again so memory matches disk.
func (fs *FileStore) InsertListing(ctx context.Context, l *models.Listing) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if l.Slug == "" {
		return fmt.Errorf("slug is required")
	}
	if _, exists := fs.listings[l.Slug]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSlug, l.Slug)
	}

	fs.nextID++
	stored := *l
	stored.ID = fs.nextID
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	fs.listings[stored.Slug] = &stored
	if err := fs.save(); err != nil {
		delete(fs.listings, stored.Slug)
		fs.nextID--
		return fmt.Errorf("failed to persist listing: %w", err)
	}

	l.ID = stored.ID
	l.CreatedAt = stored.CreatedAt
	return nil
}

func (fs *FileStore) Get(slug string) (*models.Listing, bool) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	l, exists := fs.listings[slug]
	return l, exists
}

// List returns all listings ordered by insertion.
func (fs *FileStore) List() []*models.Listing {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	out := make([]*models.Listing, 0, len(fs.listings))
	for _, l := range fs.listings {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (fs *FileStore) CountListings(_ context.Context) (int64, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return int64(len(fs.listings)), nil
}

// CountBySource counts listings per source page.
func (fs *FileStore) CountBySource(_ context.Context) (map[string]int64, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	counts := make(map[string]int64)
	for _, l := range fs.listings {
		counts[l.SourceURL]++
	}
	return counts, nil
}

func (fs *FileStore) Close() error {
	return nil
}

func (fs *FileStore) save() error {
	data, err := json.MarshalIndent(fs.listings, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(fs.filename); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return err
		}
	}

	// Write to temp file first for atomicity
	tmpFile := fs.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return err
	}

	// Rename to actual file
	return os.Rename(tmpFile, fs.filename)
}

func (fs *FileStore) Load() error {
	data, err := os.ReadFile(fs.filename)
	if err != nil {
		return err
	}

	var listings map[string]*models.Listing
	if err := json.Unmarshal(data, &listings); err != nil {
		return err
	}
	if listings == nil {
		listings = make(map[string]*models.Listing)
	}

	for slug, l := range listings {
		if l == nil {
			delete(listings, slug)
			continue
		}
		if l.ID > fs.nextID {
			fs.nextID = l.ID
		}
	}
	fs.listings = listings
	return nil
}
