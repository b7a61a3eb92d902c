package shl

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// b64u encodes test payloads the way shlink URIs do.
func b64u(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// fakeClient is an injected HTTP client driven by a handler function.
type fakeClient struct {
	mu      sync.Mutex
	calls   []*http.Request
	handler func(req *http.Request) (*http.Response, error)
}

func (f *fakeClient) Do(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	return f.handler(req)
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

// memoryStore is an in-memory storage backend for builder tests.
type memoryStore struct {
	mu      sync.Mutex
	files   map[string]string
	urlHits int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{files: make(map[string]string)}
}

func (s *memoryStore) upload(_ context.Context, ciphertext string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := "file-" + uuid.NewString()
	s.files[path] = ciphertext
	return path, nil
}

func (s *memoryStore) getURL(_ context.Context, storagePath string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urlHits++
	return fmt.Sprintf("https://files.example.org/%s?token=%d", storagePath, s.urlHits), nil
}

func (s *memoryStore) load(_ context.Context, storagePath string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ciphertext, ok := s.files[storagePath]
	if !ok {
		return "", fmt.Errorf("no such file: %s", storagePath)
	}
	return ciphertext, nil
}

func (s *memoryStore) update(_ context.Context, storagePath, ciphertext string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[storagePath]; !ok {
		return fmt.Errorf("no such file: %s", storagePath)
	}
	s.files[storagePath] = ciphertext
	return nil
}

func (s *memoryStore) remove(_ context.Context, storagePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[storagePath]; !ok {
		return fmt.Errorf("no such file: %s", storagePath)
	}
	delete(s.files, storagePath)
	return nil
}

func (s *memoryStore) callbacks() Callbacks {
	return Callbacks{
		UploadFile: s.upload,
		GetFileURL: s.getURL,
		LoadFile:   s.load,
		RemoveFile: s.remove,
		UpdateFile: s.update,
	}
}

// testKey returns a fixed, valid 256-bit SHL key.
func testKey() string {
	return b64u([]byte("0123456789abcdef0123456789abcdef"))
}
