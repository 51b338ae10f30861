// Package cloud provides the cloud module. It keeps file metadata under a
// storage quota taken from limits.maxStorage.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GoCodeAlone/blueprint"
	"github.com/GoCodeAlone/blueprint/modules/events"
)

// Type is the module type of the cloud module.
const Type blueprint.ModuleType = "cloud"

// Errors
var (
	ErrNameEmpty     = errors.New("file name is empty")
	ErrInvalidSize   = errors.New("file size must be positive")
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	ErrFileNotFound  = errors.New("file not found")
)

// File is stored file metadata.
type File struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Service is exported as "service" while the module runs.
type Service struct {
	emitter blueprint.Emitter
	quota   int64

	mu    sync.RWMutex
	files map[string]File
	used  int64
}

// Upload records a file and emits cloud.file.uploaded. A zero quota means
// unlimited.
func (s *Service) Upload(ctx context.Context, name string, size int64) (File, error) {
	if name == "" {
		return File{}, ErrNameEmpty
	}
	if size <= 0 {
		return File{}, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}

	s.mu.Lock()
	if s.quota > 0 && s.used+size > s.quota {
		s.mu.Unlock()
		return File{}, fmt.Errorf("%w: %d of %d bytes used", ErrQuotaExceeded, s.used, s.quota)
	}
	f := File{ID: uuid.NewString(), Name: name, Size: size, UploadedAt: time.Now()}
	s.files[f.ID] = f
	s.used += size
	s.mu.Unlock()

	err := s.emitter.Emit(ctx, events.CloudFileUploaded, events.FileUploadedPayload{FileID: f.ID, Name: f.Name, Size: f.Size})
	return f, err
}

// Remove deletes a file and frees its quota.
func (s *Service) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}
	delete(s.files, id)
	s.used -= f.Size
	return nil
}

// Used returns the bytes in use.
func (s *Service) Used() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.used
}

// Files lists stored files by name.
func (s *Service) Files() []File {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]File, 0, len(s.files))
	for _, f := range s.files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Service) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = make(map[string]File)
	s.used = 0
}

// Module is the cloud module.
type Module struct {
	*blueprint.Lifecycle
	svc *Service
}

// New builds a cloud module.
func New(desc blueprint.ModuleDescriptor) (blueprint.Module, error) {
	m := &Module{}
	m.Lifecycle = blueprint.NewLifecycle(desc, m)
	return m, nil
}

// Setup implements blueprint.Behavior.
func (m *Module) Setup(_ context.Context, _ *blueprint.ExecutionContext, b *blueprint.Binder) error {
	m.svc = &Service{
		emitter: b.Emitter(),
		quota:   b.Config().Limits.MaxStorage,
		files:   make(map[string]File),
	}
	b.Export("service", m.svc)
	return nil
}

// OnDispose implements blueprint.Disposer.
func (m *Module) OnDispose() error {
	if m.svc != nil {
		m.svc.clear()
	}
	return nil
}
