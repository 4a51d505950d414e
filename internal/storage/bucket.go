// Package storage stores user images (avatars, covers, luxicle content) in an
// object bucket and resolves their public URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/robby3000/luxicle/internal/apperr"
)

// Bucket is the object-storage surface the uploader needs.
type Bucket interface {
	Name() string
	// Upload writes a new object. Existing objects are never overwritten.
	Upload(ctx context.Context, path string, r io.Reader, contentType string) error
	PublicURL(path string) string
	Delete(ctx context.Context, path string) error
}

const defaultPublicBase = "https://storage.googleapis.com"

// GCSBucket stores objects in Google Cloud Storage.
type GCSBucket struct {
	client     *gcs.Client
	name       string
	publicBase string
}

// NewGCSBucket opens a client for bucket name. publicBase defaults to
// https://storage.googleapis.com; set it to a CDN or emulator origin otherwise.
func NewGCSBucket(ctx context.Context, name, publicBase string, opts ...option.ClientOption) (*GCSBucket, error) {
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	if publicBase == "" {
		publicBase = defaultPublicBase
	}
	return &GCSBucket{client: client, name: name, publicBase: strings.TrimRight(publicBase, "/")}, nil
}

func (b *GCSBucket) Name() string { return b.name }

func (b *GCSBucket) Upload(ctx context.Context, path string, r io.Reader, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := b.client.Bucket(b.name).Object(path).If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=3600"
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return &apperr.Error{Kind: apperr.KindTransport, Message: "upload failed", Err: err}
	}
	if err := w.Close(); err != nil {
		return &apperr.Error{Kind: apperr.KindTransport, Message: "upload failed", Err: err}
	}
	return nil
}

func (b *GCSBucket) PublicURL(path string) string {
	return publicURL(b.publicBase, b.name, path)
}

func (b *GCSBucket) Delete(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err := b.client.Bucket(b.name).Object(path).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return apperr.NewNotFound("object", path)
	}
	if err != nil {
		return &apperr.Error{Kind: apperr.KindTransport, Message: "delete failed", Err: err}
	}
	return nil
}

func (b *GCSBucket) Close() error {
	return b.client.Close()
}

func publicURL(base, bucket, path string) string {
	return base + "/" + bucket + "/" + (&url.URL{Path: path}).EscapedPath()
}

// MemoryBucket keeps objects in memory. Used in development and tests.
type MemoryBucket struct {
	name       string
	publicBase string

	mu      sync.RWMutex
	objects map[string]Object
}

type Object struct {
	Data        []byte
	ContentType string
}

func NewMemoryBucket(name, publicBase string) *MemoryBucket {
	if publicBase == "" {
		publicBase = "http://localhost:8080/storage"
	}
	return &MemoryBucket{
		name:       name,
		publicBase: strings.TrimRight(publicBase, "/"),
		objects:    make(map[string]Object),
	}
}

func (m *MemoryBucket) Name() string { return m.name }

func (m *MemoryBucket) Upload(_ context.Context, path string, r io.Reader, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.objects[path]; exists {
		return apperr.NewConflict("object already exists: " + path)
	}
	m.objects[path] = Object{Data: data, ContentType: contentType}
	return nil
}

func (m *MemoryBucket) PublicURL(path string) string {
	return publicURL(m.publicBase, m.name, path)
}

func (m *MemoryBucket) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[path]; !ok {
		return apperr.NewNotFound("object", path)
	}
	delete(m.objects, path)
	return nil
}

func (m *MemoryBucket) Get(path string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[path]
	return o, ok
}

func (m *MemoryBucket) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
