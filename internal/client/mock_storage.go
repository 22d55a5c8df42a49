package client

import (
	"context"
	"fmt"
	"sync"
)

// MockStorage is an in-memory StorageClient used when R2 is not configured.
// Uploads are kept in a map so development setups can exercise the full job
// pipeline without bucket credentials.
type MockStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMockStorage creates an empty in-memory storage.
func NewMockStorage() *MockStorage {
	return &MockStorage{objects: make(map[string][]byte)}
}

func (m *MockStorage) Upload(ctx context.Context, key string, data []byte, contentType string) (*UploadResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	m.objects[key] = buf
	return &UploadResult{
		Key:       key,
		URL:       m.GetPublicURL(key),
		SizeBytes: int64(len(data)),
	}, nil
}

func (m *MockStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MockStorage) GetPublicURL(key string) string {
	return fmt.Sprintf("mock://storage/%s", key)
}
