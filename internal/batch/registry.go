package batch

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/sells-group/atlas-research/internal/model"
)

// Registry tracks uploads through uploaded, analyzed and consumed. Update
// must apply fn atomically: concurrent confirms of one upload may not both
// succeed.
type Registry interface {
	Register(ctx context.Context, filename string) (model.Upload, error)
	Get(ctx context.Context, filename string) (model.Upload, error)
	Update(ctx context.Context, filename string, fn func(*model.Upload) error) (model.Upload, error)
}

// DefaultUploadTTL is how long an upload stays in a registry.
const DefaultUploadTTL = 24 * time.Hour

func unknownUpload(filename string) error {
	return model.NewValidationError(filename, "unknown upload")
}

// MemoryRegistry is a process-local Registry backed by go-cache.
type MemoryRegistry struct {
	mu    sync.Mutex
	cache *cache.Cache
}

// NewMemoryRegistry creates a MemoryRegistry whose entries expire after ttl.
func NewMemoryRegistry(ttl time.Duration) *MemoryRegistry {
	if ttl <= 0 {
		ttl = DefaultUploadTTL
	}
	return &MemoryRegistry{cache: cache.New(ttl, ttl/4)}
}

func (r *MemoryRegistry) Register(_ context.Context, filename string) (model.Upload, error) {
	up := model.Upload{
		Filename:   filename,
		State:      model.UploadUploaded,
		UploadedAt: time.Now().UTC(),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.cache.Add(filename, up, cache.DefaultExpiration); err != nil {
		return model.Upload{}, model.NewValidationError(filename, "already registered")
	}
	return up, nil
}

func (r *MemoryRegistry) Get(_ context.Context, filename string) (model.Upload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(filename)
}

func (r *MemoryRegistry) get(filename string) (model.Upload, error) {
	if x, found := r.cache.Get(filename); found {
		return x.(model.Upload), nil
	}
	return model.Upload{}, unknownUpload(filename)
}

func (r *MemoryRegistry) Update(_ context.Context, filename string, fn func(*model.Upload) error) (model.Upload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	up, err := r.get(filename)
	if err != nil {
		return model.Upload{}, err
	}
	next := up
	next.Targets = append([]model.Target(nil), up.Targets...)
	if err := fn(&next); err != nil {
		return up, err
	}
	r.cache.Set(filename, next, cache.DefaultExpiration)
	return next, nil
}
