package shl

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	sh "github.com/gofhir/smarthealth"
	"github.com/gofhir/smarthealth/shc"
)

// DefaultEmbeddedLengthMax is the embedded/location threshold used when
// a manifest request does not supply one.
const DefaultEmbeddedLengthMax = 16384

// Storage callbacks. UploadFile and GetFileURL are required; the rest
// unlock optional operations. Callback lifetimes must outlive the
// builder.
type (
	// UploadFunc stores a ciphertext and returns its opaque storage path.
	UploadFunc func(ctx context.Context, ciphertext string) (string, error)

	// GetFileURLFunc returns a short-lived download URL for a stored file.
	GetFileURLFunc func(ctx context.Context, storagePath string) (string, error)

	// LoadFileFunc returns the ciphertext for a stored file. Optional;
	// the default fetches GetFileURL over the injected HTTP client.
	LoadFileFunc func(ctx context.Context, storagePath string) (string, error)

	// RemoveFileFunc deletes a stored file. Optional.
	RemoveFileFunc func(ctx context.Context, storagePath string) error

	// UpdateFileFunc replaces the ciphertext of a stored file. Optional.
	UpdateFileFunc func(ctx context.Context, storagePath, ciphertext string) error
)

// Callbacks bundles the storage hooks injected into a Builder.
type Callbacks struct {
	UploadFile UploadFunc
	GetFileURL GetFileURLFunc
	LoadFile   LoadFileFunc
	RemoveFile RemoveFileFunc
	UpdateFile UpdateFileFunc
}

// FileMeta describes one encrypted file tracked by a Builder.
type FileMeta struct {
	// StoragePath is the opaque identifier from the upload callback,
	// unique within a builder.
	StoragePath string `json:"storagePath"`

	// ContentType is the cleartext media type.
	ContentType string `json:"type"`

	// CiphertextLength is the byte length of the stored JWE string.
	CiphertextLength int `json:"ciphertextLength"`

	// LastUpdated is an ISO-8601 UTC timestamp.
	LastUpdated string `json:"lastUpdated"`
}

// Manifest is the per-request manifest document.
type Manifest struct {
	Files  []ManifestFile `json:"files"`
	Status string         `json:"status,omitempty"`
	List   map[string]any `json:"list,omitempty"`
}

// ManifestFile is one manifest entry; exactly one of Embedded or
// Location is set.
type ManifestFile struct {
	ContentType string `json:"contentType"`
	Embedded    string `json:"embedded,omitempty"`
	Location    string `json:"location,omitempty"`
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithHTTPClient overrides the transport used by the default file
// loader.
func WithHTTPClient(client sh.HTTPClient) BuilderOption {
	return func(b *Builder) { b.client = client }
}

// WithBuilderMetrics wires manifest counters.
func WithBuilderMetrics(m *sh.Metrics) BuilderOption {
	return func(b *Builder) { b.metrics = m }
}

// Builder owns the file registry behind one SMART Health Link and
// assembles manifest documents from it. The SHL itself is immutable;
// the file list is not, and mutation is the owning caller's to
// serialize.
type Builder struct {
	shl     *SHL
	files   []FileMeta
	cb      Callbacks
	client  sh.HTTPClient
	metrics *sh.Metrics
	now     func() time.Time
}

// NewBuilder creates a Builder for an existing SHL.
func NewBuilder(s *SHL, cb Callbacks, opts ...BuilderOption) (*Builder, error) {
	if s == nil {
		return nil, sh.NewError(sh.KindSHLManifest, "SHL is required")
	}
	if cb.UploadFile == nil || cb.GetFileURL == nil {
		return nil, sh.NewError(sh.KindSHLManifest, "UploadFile and GetFileURL callbacks are required")
	}

	b := &Builder{
		shl:    s,
		cb:     cb,
		client: defaultHTTPClient,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// SHL returns the link this builder serves.
func (b *Builder) SHL() *SHL {
	return b.shl
}

// Files returns a copy of the tracked file metadata, in order.
func (b *Builder) Files() []FileMeta {
	out := make([]FileMeta, len(b.files))
	copy(out, b.files)
	return out
}

// FindFile looks a file up by storage path.
func (b *Builder) FindFile(storagePath string) (FileMeta, bool) {
	for _, f := range b.files {
		if f.StoragePath == storagePath {
			return f, true
		}
	}
	return FileMeta{}, false
}

// FileOption configures an add or update operation.
type FileOption func(*fileConfig)

type fileConfig struct {
	compress bool
}

// WithFileCompression toggles DEFLATE compression of the file content
// before encryption. Enabled by default.
func WithFileCompression(enable bool) FileOption {
	return func(c *fileConfig) { c.compress = enable }
}

// AddHealthCard wraps a JWS into a SMART Health Card file, encrypts it
// with the SHL key and uploads it.
func (b *Builder) AddHealthCard(ctx context.Context, jws string, opts ...FileOption) (FileMeta, error) {
	file := shc.NewFile(jws)
	return b.AddHealthCardFile(ctx, file, opts...)
}

// AddHealthCardFile encrypts an existing card file and uploads it.
func (b *Builder) AddHealthCardFile(ctx context.Context, file *shc.File, opts ...FileOption) (FileMeta, error) {
	content, err := file.Marshal()
	if err != nil {
		return FileMeta{}, err
	}
	return b.add(ctx, content, sh.MIMETypeSmartHealthCard, opts)
}

// AddFHIRResource JSON-encodes a FHIR resource, encrypts it with the
// SHL key and uploads it.
func (b *Builder) AddFHIRResource(ctx context.Context, resource map[string]any, opts ...FileOption) (FileMeta, error) {
	content, err := json.Marshal(resource)
	if err != nil {
		return FileMeta{}, sh.WrapError(sh.KindSHLManifest, "resource is not serializable", err)
	}
	return b.add(ctx, content, sh.MIMETypeFHIRJSON, opts)
}

func (b *Builder) add(ctx context.Context, content []byte, contentType string, opts []FileOption) (FileMeta, error) {
	cfg := fileConfig{compress: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	ciphertext, err := EncryptFile(content, b.shl.Key, contentType, cfg.compress)
	if err != nil {
		return FileMeta{}, err
	}

	storagePath, err := b.cb.UploadFile(ctx, ciphertext)
	if err != nil {
		return FileMeta{}, sh.WrapError(sh.KindSHLManifest, "file upload failed", err)
	}
	if _, exists := b.FindFile(storagePath); exists {
		return FileMeta{}, sh.Errorf(sh.KindSHLManifest,
			"storage path '%s' already tracked in manifest", storagePath)
	}

	meta := FileMeta{
		StoragePath:      storagePath,
		ContentType:      contentType,
		CiphertextLength: len(ciphertext),
		LastUpdated:      b.now().UTC().Format(time.RFC3339),
	}
	b.files = append(b.files, meta)
	return meta, nil
}

// UpdateHealthCard re-encrypts a stored health card file with new
// content. The record's type must already be a health card.
func (b *Builder) UpdateHealthCard(ctx context.Context, storagePath, jws string, opts ...FileOption) (FileMeta, error) {
	content, err := shc.NewFile(jws).Marshal()
	if err != nil {
		return FileMeta{}, err
	}
	return b.update(ctx, storagePath, content, sh.MIMETypeSmartHealthCard, opts)
}

// UpdateFHIRResource re-encrypts a stored FHIR resource file with new
// content. The record's type must already be a FHIR resource.
func (b *Builder) UpdateFHIRResource(ctx context.Context, storagePath string, resource map[string]any, opts ...FileOption) (FileMeta, error) {
	content, err := json.Marshal(resource)
	if err != nil {
		return FileMeta{}, sh.WrapError(sh.KindSHLManifest, "resource is not serializable", err)
	}
	return b.update(ctx, storagePath, content, sh.MIMETypeFHIRJSON, opts)
}

func (b *Builder) update(ctx context.Context, storagePath string, content []byte, contentType string, opts []FileOption) (FileMeta, error) {
	if b.cb.UpdateFile == nil {
		return FileMeta{}, sh.NewError(sh.KindSHLManifest, "UpdateFile callback is not configured")
	}

	idx := b.indexOf(storagePath)
	if idx < 0 {
		return FileMeta{}, sh.Errorf(sh.KindSHLManifest, "file not found in manifest: %s", storagePath)
	}
	if b.files[idx].ContentType != contentType {
		return FileMeta{}, sh.Errorf(sh.KindSHLManifest,
			"file '%s' has type %s, not %s", storagePath, b.files[idx].ContentType, contentType)
	}

	cfg := fileConfig{compress: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	ciphertext, err := EncryptFile(content, b.shl.Key, contentType, cfg.compress)
	if err != nil {
		return FileMeta{}, err
	}
	if err := b.cb.UpdateFile(ctx, storagePath, ciphertext); err != nil {
		return FileMeta{}, sh.WrapError(sh.KindSHLManifest, "file update failed", err)
	}

	b.files[idx].CiphertextLength = len(ciphertext)
	b.files[idx].LastUpdated = b.now().UTC().Format(time.RFC3339)
	return b.files[idx], nil
}

// RemoveFile deletes a stored file and forgets its record.
func (b *Builder) RemoveFile(ctx context.Context, storagePath string) error {
	if b.cb.RemoveFile == nil {
		return sh.NewError(sh.KindSHLManifest, "RemoveFile callback is not configured")
	}

	idx := b.indexOf(storagePath)
	if idx < 0 {
		return sh.Errorf(sh.KindSHLManifest, "file not found in manifest: %s", storagePath)
	}

	if err := b.cb.RemoveFile(ctx, storagePath); err != nil {
		return sh.WrapError(sh.KindSHLManifest, "file removal failed", err)
	}

	b.files = append(b.files[:idx], b.files[idx+1:]...)
	return nil
}

func (b *Builder) indexOf(storagePath string) int {
	for i, f := range b.files {
		if f.StoragePath == storagePath {
			return i
		}
	}
	return -1
}

// BuildManifestOptions configures one manifest assembly.
type BuildManifestOptions struct {
	// EmbeddedLengthMax is the inclusive ciphertext-length threshold
	// below which files are embedded rather than linked. Zero means
	// DefaultEmbeddedLengthMax.
	EmbeddedLengthMax int

	// Status is the optional manifest status, e.g. "can-change".
	Status string

	// List is an optional FHIR List resource echoed into the manifest.
	List map[string]any
}

// BuildManifest assembles a fresh manifest document. Files at or below
// the embedded threshold carry their ciphertext inline; larger files
// get a newly minted short-lived location URL. Nothing is cached
// between calls.
func (b *Builder) BuildManifest(ctx context.Context, opts BuildManifestOptions) (*Manifest, error) {
	if b.shl.Expired(b.now()) {
		return nil, sh.NewError(sh.KindSHLExpired, "SHL has expired")
	}

	threshold := opts.EmbeddedLengthMax
	if threshold == 0 {
		threshold = DefaultEmbeddedLengthMax
	}

	manifest := &Manifest{
		Files:  make([]ManifestFile, 0, len(b.files)),
		Status: opts.Status,
		List:   opts.List,
	}

	for _, file := range b.files {
		entry, err := b.buildEntry(ctx, file, threshold)
		if err != nil {
			if sh.IsLibraryError(err) {
				return nil, err
			}
			return nil, sh.WrapError(sh.KindSHLManifest, "Failed to build manifest", err)
		}
		manifest.Files = append(manifest.Files, entry)
	}

	if b.metrics != nil {
		b.metrics.RecordManifestBuild()
	}
	return manifest, nil
}

func (b *Builder) buildEntry(ctx context.Context, file FileMeta, threshold int) (ManifestFile, error) {
	ciphertext, err := b.loadFile(ctx, file.StoragePath)
	if err != nil {
		return ManifestFile{}, err
	}

	if len(ciphertext) <= threshold {
		return ManifestFile{ContentType: file.ContentType, Embedded: ciphertext}, nil
	}

	location, err := b.cb.GetFileURL(ctx, file.StoragePath)
	if err != nil {
		return ManifestFile{}, err
	}
	return ManifestFile{ContentType: file.ContentType, Location: location}, nil
}

// loadFile uses the injected loader, falling back to fetching the
// file's short-lived URL over HTTP. HTTP failures on the fallback path
// are always network errors, never manifest-protocol errors.
func (b *Builder) loadFile(ctx context.Context, storagePath string) (string, error) {
	if b.cb.LoadFile != nil {
		return b.cb.LoadFile(ctx, storagePath)
	}

	url, err := b.cb.GetFileURL(ctx, storagePath)
	if err != nil {
		return "", err
	}
	body, err := getBodyUniform(ctx, b.client, url)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// entropySegmentPattern matches the 43-character base64url manifest id.
var entropySegmentPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{43}$`)

// ManifestID extracts the entropy segment from the SHL URL: the last
// path segment that is exactly 43 base64url characters, scanning past
// any trailing file name.
func (b *Builder) ManifestID() (string, error) {
	return ManifestIDFromURL(b.shl.URL)
}

// ManifestIDFromURL extracts and validates the entropy segment of a
// manifest URL.
func ManifestIDFromURL(manifestURL string) (string, error) {
	trimmed := strings.SplitN(manifestURL, "?", 2)[0]
	segments := strings.Split(trimmed, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		segment := segments[i]
		if segment == "" {
			continue
		}
		if entropySegmentPattern.MatchString(segment) {
			return segment, nil
		}
	}
	return "", sh.Errorf(sh.KindSHLFormat, "no manifest id segment in '%s'", manifestURL)
}

// BuilderAttrs is the lossless snapshot of a builder's state: the SHL
// payload plus the file metadata sequence. Callbacks are reattached on
// restore.
type BuilderAttrs struct {
	SHL   *SHL       `json:"shl"`
	Files []FileMeta `json:"files"`
}

// Attrs snapshots the builder for persistence.
func (b *Builder) Attrs() BuilderAttrs {
	files := make([]FileMeta, len(b.files))
	copy(files, b.files)
	shlCopy := *b.shl
	return BuilderAttrs{SHL: &shlCopy, Files: files}
}

// NewBuilderFromAttrs restores a builder from a snapshot.
func NewBuilderFromAttrs(attrs BuilderAttrs, cb Callbacks, opts ...BuilderOption) (*Builder, error) {
	b, err := NewBuilder(attrs.SHL, cb, opts...)
	if err != nil {
		return nil, err
	}
	b.files = make([]FileMeta, len(attrs.Files))
	copy(b.files, attrs.Files)
	return b, nil
}
