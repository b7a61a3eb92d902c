package shl

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/buger/jsonparser"

	sh "github.com/gofhir/smarthealth"
	"github.com/gofhir/smarthealth/directory"
	"github.com/gofhir/smarthealth/shc"
)

// ViewerOption configures a Viewer.
type ViewerOption func(*Viewer)

// WithViewerHTTPClient overrides the transport used for manifest and
// file requests.
func WithViewerHTTPClient(client sh.HTTPClient) ViewerOption {
	return func(v *Viewer) { v.client = client }
}

// WithViewerMetrics wires resolution counters.
func WithViewerMetrics(m *sh.Metrics) ViewerOption {
	return func(v *Viewer) { v.metrics = m }
}

// Viewer resolves a parsed SMART Health Link back to clear resources.
type Viewer struct {
	shl     *SHL
	client  sh.HTTPClient
	metrics *sh.Metrics
	now     func() time.Time
}

// NewViewer creates a Viewer for a parsed SHL.
func NewViewer(s *SHL, opts ...ViewerOption) (*Viewer, error) {
	if s == nil {
		return nil, sh.NewError(sh.KindSHLViewer, "SHL is required")
	}
	v := &Viewer{shl: s, client: defaultHTTPClient, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// ResolveOptions configures one resolution.
type ResolveOptions struct {
	// Recipient identifies who is requesting the content. Required.
	Recipient string

	// Passcode answers the P flag. Required when the SHL demands one.
	Passcode string

	// EmbeddedLengthMax, when > 0, is forwarded to the manifest
	// endpoint as the embedding threshold.
	EmbeddedLengthMax int

	// Reader verifies any SMART Health Cards found in the manifest.
	// When nil, a reader that fetches issuer JWKS through the
	// directory is used.
	Reader *shc.Reader
}

// Resolved is the outcome of one resolution.
type Resolved struct {
	// Manifest is the manifest document the endpoint served. For
	// direct-file links it is synthesized from the single file.
	Manifest *Manifest

	// SmartHealthCards holds the verified cards, in manifest order.
	SmartHealthCards []*shc.Card

	// FHIRResources holds the raw FHIR resources, in manifest order.
	FHIRResources []map[string]any
}

// ResolveSHLink fetches, decrypts and dispatches everything behind the
// link. Pre-flight failures (expiry, missing passcode) surface before
// any network call.
func (v *Viewer) ResolveSHLink(ctx context.Context, opts ResolveOptions) (*Resolved, error) {
	if strings.TrimSpace(opts.Recipient) == "" {
		return nil, sh.NewError(sh.KindSHLViewer, "recipient is required")
	}
	if v.shl.Expired(v.now()) {
		return nil, sh.NewError(sh.KindSHLExpired, "SHL has expired")
	}
	if v.shl.RequiresPasscode() && opts.Passcode == "" {
		return nil, sh.NewError(sh.KindSHLInvalidPasscode, "SHL requires a passcode")
	}

	var resolved *Resolved
	var err error
	if v.shl.IsDirectFile() {
		resolved, err = v.resolveDirectFile(ctx, opts)
	} else {
		resolved, err = v.resolveManifest(ctx, opts)
	}
	if err != nil {
		return nil, err
	}

	if v.metrics != nil {
		v.metrics.RecordLinkResolve()
	}
	return resolved, nil
}

// resolveDirectFile handles U-flagged links: the SHL URL is the single
// encrypted file, its content type inferred from the JWE cty.
func (v *Viewer) resolveDirectFile(ctx context.Context, opts ResolveOptions) (*Resolved, error) {
	body, err := getBody(ctx, v.client, v.shl.URL)
	if err != nil {
		return nil, err
	}

	ciphertext := string(body)
	plaintext, contentType, err := DecryptFile(ciphertext, v.shl.Key)
	if err != nil {
		return nil, err
	}
	if !sh.SupportedContentType(contentType) {
		return nil, sh.Errorf(sh.KindSHLInvalidContent, "unsupported content type '%s'", contentType)
	}

	resolved := &Resolved{
		Manifest: &Manifest{
			Files: []ManifestFile{{ContentType: contentType, Embedded: ciphertext}},
		},
	}
	if err := v.dispatch(ctx, plaintext, contentType, opts.Reader, resolved); err != nil {
		return nil, err
	}
	return resolved, nil
}

// resolveManifest POSTs the manifest request and walks the file list.
func (v *Viewer) resolveManifest(ctx context.Context, opts ResolveOptions) (*Resolved, error) {
	manifest, err := v.fetchManifest(ctx, opts)
	if err != nil {
		return nil, err
	}

	resolved := &Resolved{Manifest: manifest}
	for _, file := range manifest.Files {
		ciphertext := file.Embedded
		if ciphertext == "" {
			body, err := getBody(ctx, v.client, file.Location)
			if err != nil {
				return nil, err
			}
			ciphertext = string(body)
		}

		plaintext, cty, err := DecryptFile(ciphertext, v.shl.Key)
		if err != nil {
			return nil, err
		}
		if cty != file.ContentType {
			return nil, sh.Errorf(sh.KindSHLManifest,
				"Content type mismatch: manifest says %s, JWE says %s", file.ContentType, cty)
		}

		if err := v.dispatch(ctx, plaintext, cty, opts.Reader, resolved); err != nil {
			return nil, err
		}
	}
	return resolved, nil
}

// fetchManifest POSTs the manifest request and validates the response
// shape.
func (v *Viewer) fetchManifest(ctx context.Context, opts ResolveOptions) (*Manifest, error) {
	request := map[string]any{"recipient": opts.Recipient}
	if opts.Passcode != "" {
		request["passcode"] = opts.Passcode
	}
	if opts.EmbeddedLengthMax > 0 {
		request["embeddedLengthMax"] = opts.EmbeddedLengthMax
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return nil, sh.WrapError(sh.KindSHLViewer, "manifest request is not serializable", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.shl.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, sh.WrapError(sh.KindSHLNetwork, "cannot create manifest request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := fetchBody(v.client, req)
	if err != nil {
		return nil, err
	}

	var manifest Manifest
	if err := json.Unmarshal(body, &manifest); err != nil {
		return nil, sh.NewError(sh.KindSHLManifest, "Invalid manifest response: not valid JSON")
	}

	for i, file := range manifest.Files {
		if !sh.SupportedContentType(file.ContentType) {
			return nil, sh.Errorf(sh.KindSHLManifest,
				"manifest file %d has unsupported content type '%s'", i, file.ContentType)
		}
		hasEmbedded := file.Embedded != ""
		hasLocation := file.Location != ""
		if hasEmbedded == hasLocation {
			return nil, sh.Errorf(sh.KindSHLManifest,
				"manifest file %d must have exactly one of embedded or location", i)
		}
		if hasLocation {
			u, err := url.Parse(file.Location)
			if err != nil || !u.IsAbs() || u.Host == "" {
				return nil, sh.Errorf(sh.KindSHLManifest,
					"manifest file %d has invalid location '%s'", i, file.Location)
			}
		}
	}
	return &manifest, nil
}

// dispatch routes decrypted content by its type.
func (v *Viewer) dispatch(ctx context.Context, plaintext []byte, contentType string, reader *shc.Reader, resolved *Resolved) error {
	switch contentType {
	case sh.MIMETypeSmartHealthCard:
		if reader == nil {
			// No reader injected: fall back to resolving issuer keys
			// through the directory's well-known JWKS endpoints.
			reader = shc.NewReader(shc.WithKeyResolver(
				directory.NewClient(directory.WithHTTPClient(v.client))))
		}
		cards, err := reader.FromFileJSON(ctx, plaintext)
		if err != nil {
			return err
		}
		resolved.SmartHealthCards = append(resolved.SmartHealthCards, cards...)
		return nil

	case sh.MIMETypeFHIRJSON:
		resourceType, err := jsonparser.GetString(plaintext, "resourceType")
		if err != nil || resourceType == "" {
			return sh.NewError(sh.KindSHLInvalidContent, "FHIR content has no resourceType")
		}
		var resource map[string]any
		if err := json.Unmarshal(plaintext, &resource); err != nil {
			return sh.WrapError(sh.KindSHLInvalidContent, "FHIR content is not valid JSON", err)
		}
		resolved.FHIRResources = append(resolved.FHIRResources, resource)
		return nil

	default:
		return sh.Errorf(sh.KindSHLInvalidContent, "unsupported content type '%s'", contentType)
	}
}
