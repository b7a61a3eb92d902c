package shl

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	sh "github.com/gofhir/smarthealth"
)

// URIPrefix is the SMART Health Link URI scheme prefix.
const URIPrefix = "shlink:/"

// MaxLabelLength bounds the label payload field.
const MaxLabelLength = 80

// entropyBytes is the size of the random draws for the manifest path
// segment and the encryption key; 32 bytes base64url-encode to 43 chars.
const entropyBytes = 32

// validFlags is the accepted flag alphabet.
var validFlags = map[string]bool{
	"L": true, "P": true, "LP": true, "U": true, "LU": true,
}

// SHL is a SMART Health Link payload. It is immutable after creation.
type SHL struct {
	// URL is the manifest URL (or direct file URL for U-flagged links).
	URL string `json:"url"`

	// Key is the base64url-encoded 256-bit file encryption key.
	Key string `json:"key"`

	// Exp is the link expiration in epoch seconds, 0 when unset.
	Exp int64 `json:"exp,omitempty"`

	// Flag is the capability string: L (long-term), P (passcode),
	// U (direct file), or the combinations LP and LU.
	Flag string `json:"flag,omitempty"`

	// Label is a short human-readable description.
	Label string `json:"label,omitempty"`

	// V is the payload version, always 1.
	V int `json:"v,omitempty"`
}

// GenerateOptions configures Generate.
type GenerateOptions struct {
	// BaseManifestURL is the URL prefix the entropy segment is appended
	// to. Required.
	BaseManifestURL string

	// ManifestPath is an optional trailing path, e.g. "/manifest.json".
	ManifestPath string

	// ExpirationDate, when non-zero, becomes the exp payload field.
	ExpirationDate time.Time

	// Flag is the capability string; empty for none.
	Flag string

	// Label is a short description, at most 80 characters.
	Label string
}

// Generate creates a new SHL with fresh entropy: a 43-character
// manifest path segment and a 256-bit encryption key, both drawn from
// the OS CSPRNG.
func Generate(opts GenerateOptions) (*SHL, error) {
	if opts.BaseManifestURL == "" {
		return nil, sh.NewError(sh.KindSHLFormat, "baseManifestURL is required")
	}
	if err := validateBaseURL(opts.BaseManifestURL); err != nil {
		return nil, err
	}
	if len(opts.Label) > MaxLabelLength {
		return nil, sh.Errorf(sh.KindSHLFormat, "label exceeds %d characters", MaxLabelLength)
	}
	if opts.Flag != "" && !validFlags[opts.Flag] {
		return nil, sh.Errorf(sh.KindSHLFormat, "invalid flag '%s'", opts.Flag)
	}

	entropy, err := randomSegment()
	if err != nil {
		return nil, err
	}
	key, err := randomSegment()
	if err != nil {
		return nil, err
	}

	manifestURL := strings.TrimRight(opts.BaseManifestURL, "/") + "/" + entropy
	if opts.ManifestPath != "" {
		manifestURL += "/" + strings.TrimLeft(opts.ManifestPath, "/")
	}

	s := &SHL{
		URL:   manifestURL,
		Key:   key,
		Flag:  opts.Flag,
		Label: opts.Label,
		V:     1,
	}
	if !opts.ExpirationDate.IsZero() {
		s.Exp = opts.ExpirationDate.Unix()
	}
	return s, nil
}

// randomSegment draws 32 random bytes and base64url-encodes them.
func randomSegment() (string, error) {
	buf := make([]byte, entropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", sh.WrapError(sh.KindSHL, "entropy source failed", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// URI serializes the payload as a bare shlink:/ URI.
func (s *SHL) URI() (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", sh.WrapError(sh.KindSHLFormat, "payload is not serializable", err)
	}
	return URIPrefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

// ViewerURI serializes the payload with a viewer URL prefix. Trailing
// slashes of viewerURL are removed before "#" is appended, so
// "https://viewer.example.org/" yields https://viewer.example.org#shlink:/...
func (s *SHL) ViewerURI(viewerURL string) (string, error) {
	uri, err := s.URI()
	if err != nil {
		return "", err
	}
	return strings.TrimRight(viewerURL, "/") + "#" + uri, nil
}

// RequiresPasscode reports whether the link demands a passcode (P flag).
func (s *SHL) RequiresPasscode() bool {
	return strings.Contains(s.Flag, "P")
}

// IsLongTerm reports whether the link may keep changing (L flag).
func (s *SHL) IsLongTerm() bool {
	return strings.Contains(s.Flag, "L")
}

// IsDirectFile reports whether the URL points at a single encrypted
// file rather than a manifest (U flag).
func (s *SHL) IsDirectFile() bool {
	return strings.Contains(s.Flag, "U")
}

// Expired reports whether the link's exp has passed at the given time.
func (s *SHL) Expired(now time.Time) bool {
	return s.Exp != 0 && s.Exp <= now.Unix()
}

// Parse decodes a shlink URI, accepting both the bare form and the
// viewer-prefixed form (https://viewer/#shlink:/...), and validates the
// payload.
func Parse(uri string) (*SHL, error) {
	trimmed := strings.TrimSpace(uri)

	if idx := strings.Index(trimmed, "#"+URIPrefix); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	if !strings.HasPrefix(trimmed, URIPrefix) {
		return nil, sh.NewError(sh.KindSHLFormat, "URI must start with shlink:/")
	}

	encoded := trimmed[len(URIPrefix):]
	if encoded == "" {
		return nil, sh.NewError(sh.KindSHLFormat, "URI has empty payload")
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, sh.WrapError(sh.KindSHLFormat, "payload is not base64url", err)
	}

	var s SHL
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, sh.WrapError(sh.KindSHLFormat, "payload is not valid JSON", err)
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// validate applies the payload field rules.
func (s *SHL) validate() error {
	if s.URL == "" {
		return sh.NewError(sh.KindSHLFormat, "payload is missing url")
	}
	if err := validateBaseURL(s.URL); err != nil {
		return err
	}
	if s.Key == "" {
		return sh.NewError(sh.KindSHLFormat, "payload is missing key")
	}
	if len(s.Key) != 43 {
		return sh.Errorf(sh.KindSHLFormat, "key must be 43 characters, got %d", len(s.Key))
	}
	if s.Exp < 0 {
		return sh.NewError(sh.KindSHLFormat, "exp must be a positive number")
	}
	if s.Flag != "" && !validFlags[s.Flag] {
		return sh.Errorf(sh.KindSHLFormat, "invalid flag '%s'", s.Flag)
	}
	if len(s.Label) > MaxLabelLength {
		return sh.Errorf(sh.KindSHLFormat, "label exceeds %d characters", MaxLabelLength)
	}
	if s.V != 0 && s.V != 1 {
		return sh.Errorf(sh.KindSHLFormat, "unsupported payload version %d", s.V)
	}
	return nil
}

// validateBaseURL requires an absolute URL with a host. The scheme is
// not checked.
func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return sh.Errorf(sh.KindSHLFormat, "'%s' is not a valid absolute URL", raw)
	}
	return nil
}
