package blob

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mediationai/mediator/internal/domain"
)

// ErrNotFound is returned when a reference does not resolve to a blob.
var ErrNotFound = errors.New("blob not found")

// Provider constants
const (
	ProviderMemory = "memory"
	ProviderS3     = "s3"
)

// AttachmentKey returns the storage key for an attachment of a dispute.
func AttachmentKey(disputeID, attachmentID uuid.UUID) string {
	d := time.Now().UTC()
	return fmt.Sprintf("disputes/%d/%02d/%s/%s", d.Year(), d.Month(), disputeID, attachmentID)
}

type object struct {
	data        []byte
	contentType string
}

// MemoryStore keeps blobs in process memory. References are the keys.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]object
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]object)}
}

func (s *MemoryStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = object{data: append([]byte(nil), data...), contentType: contentType}
	return key, nil
}

func (s *MemoryStore) Get(ctx context.Context, ref string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[ref]
	if !ok {
		return nil, "", ErrNotFound
	}
	return append([]byte(nil), obj.data...), obj.contentType, nil
}

func (s *MemoryStore) Delete(ctx context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, ref)
	return nil
}

// Len returns the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

var (
	_ domain.BlobStore = (*MemoryStore)(nil)
	_ domain.BlobStore = (*S3Store)(nil)
)
