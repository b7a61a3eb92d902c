// Package directory discovers SMART Health Card issuers: their JWKS
// verification keys and per-key certificate revocation lists.
//
// The client is best-effort by contract: an issuer whose JWKS cannot be
// fetched is skipped, and only CRLs that fetch successfully are
// included. Revocation enforcement stays with the caller; this package
// only fetches and parses.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"

	sh "github.com/gofhir/smarthealth"
	"github.com/gofhir/smarthealth/cache"
	"github.com/gofhir/smarthealth/pkg/logger"
)

// CRL is a certificate revocation list for one signing key.
type CRL struct {
	// Kid is the key the list applies to.
	Kid string `json:"kid"`

	// Method is the revocation method, always "rid".
	Method string `json:"method"`

	// Ctr is the list version counter.
	Ctr int `json:"ctr"`

	// Rids are the revoked credential identifiers.
	Rids []string `json:"rids"`
}

// Entry is one issuer in the directory.
type Entry struct {
	// Iss is the issuer base URL.
	Iss string

	// Keys is the issuer's JWKS.
	Keys jwk.Set

	// CRLs are the revocation lists that fetched successfully.
	CRLs []CRL
}

// Directory is an immutable snapshot of issuer entries.
type Directory struct {
	entries []Entry
	byIss   map[string]int
}

// newDirectory indexes entries by issuer.
func newDirectory(entries []Entry) *Directory {
	d := &Directory{entries: entries, byIss: make(map[string]int, len(entries))}
	for i, e := range entries {
		d.byIss[e.Iss] = i
	}
	return d
}

// Entries returns the issuer entries in fetch order.
func (d *Directory) Entries() []Entry {
	out := make([]Entry, len(d.entries))
	copy(out, d.entries)
	return out
}

// Find returns the entry for an issuer.
func (d *Directory) Find(iss string) (Entry, bool) {
	i, ok := d.byIss[iss]
	if !ok {
		return Entry{}, false
	}
	return d.entries[i], true
}

// ResolveKey returns the issuer's key with the given kid.
func (d *Directory) ResolveKey(iss, kid string) (jwk.Key, bool) {
	entry, ok := d.Find(iss)
	if !ok {
		return nil, false
	}
	return findKey(entry.Keys, kid)
}

// CRLFor returns the revocation list for an issuer's key.
func (d *Directory) CRLFor(iss, kid string) (CRL, bool) {
	entry, ok := d.Find(iss)
	if !ok {
		return CRL{}, false
	}
	for _, crl := range entry.CRLs {
		if crl.Kid == kid {
			return crl, true
		}
	}
	return CRL{}, false
}

// findKey scans a JWKS for a kid.
func findKey(set jwk.Set, kid string) (jwk.Key, bool) {
	if set == nil {
		return nil, false
	}
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}
		if id, ok := key.KeyID(); ok && id == kid {
			return key, true
		}
	}
	return nil, false
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the transport.
func WithHTTPClient(client sh.HTTPClient) ClientOption {
	return func(c *Client) { c.client = client }
}

// WithCacheTTL sets how long fetched key sets stay cached. Defaults to
// one hour; zero disables expiry.
func WithCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) { c.ttl = ttl }
}

// WithLogger overrides the logger used for skipped issuers.
func WithLogger(log *logger.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// WithMetrics wires key-cache counters.
func WithMetrics(m *sh.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// Client fetches issuer keys and revocation lists over an injected
// transport. It implements the reader's KeyResolver with a TTL cache of
// key sets, so repeated verifications of cards from one issuer reuse
// the fetched JWKS.
type Client struct {
	client  sh.HTTPClient
	log     *logger.Logger
	ttl     time.Duration
	keys    *cache.Cache[string, jwk.Set]
	metrics *sh.Metrics
}

// NewClient creates a directory client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		client: &http.Client{Timeout: 30 * time.Second},
		log:    logger.Default(),
		ttl:    time.Hour,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.keys = cache.NewWithTTL[string, jwk.Set](256, c.ttl)
	return c
}

// jwksURL composes the well-known JWKS location for an issuer.
func jwksURL(iss string) string {
	return strings.TrimRight(iss, "/") + "/.well-known/jwks.json"
}

// crlURL composes the well-known CRL location for an issuer's key.
func crlURL(iss, kid string) string {
	return fmt.Sprintf("%s/.well-known/crl/%s.json", strings.TrimRight(iss, "/"), kid)
}

// FetchJWKS fetches and parses an issuer's key set.
func (c *Client) FetchJWKS(ctx context.Context, iss string) (jwk.Set, error) {
	body, err := c.get(ctx, jwksURL(iss))
	if err != nil {
		return nil, err
	}

	set, err := jwk.Parse(body)
	if err != nil {
		return nil, sh.WrapError(sh.KindSignatureVerification, "cannot parse JWKS for "+iss, err)
	}
	return set, nil
}

// FetchCRL fetches one key's revocation list.
func (c *Client) FetchCRL(ctx context.Context, iss, kid string) (*CRL, error) {
	body, err := c.get(ctx, crlURL(iss, kid))
	if err != nil {
		return nil, err
	}

	var crl CRL
	if err := json.Unmarshal(body, &crl); err != nil {
		return nil, sh.WrapError(sh.KindSignatureVerification, "cannot parse CRL for "+kid, err)
	}
	return &crl, nil
}

// ResolveKey locates an issuer's verification key by kid, consulting
// the TTL cache before the network.
func (c *Client) ResolveKey(ctx context.Context, iss, kid string) (jwk.Key, error) {
	if set, ok := c.keys.Get(iss); ok {
		if c.metrics != nil {
			c.metrics.RecordKeyCacheHit()
		}
		if key, found := findKey(set, kid); found {
			return key, nil
		}
		// The kid may have rotated in since the cached fetch.
	} else if c.metrics != nil {
		c.metrics.RecordKeyCacheMiss()
	}

	set, err := c.FetchJWKS(ctx, iss)
	if err != nil {
		return nil, err
	}
	c.keys.Set(iss, set)

	key, found := findKey(set, kid)
	if !found {
		return nil, sh.Errorf(sh.KindSignatureVerification,
			"issuer %s has no key with kid %s", iss, kid)
	}
	return key, nil
}

// FromURLs builds a directory from issuer URLs. Issuers whose JWKS
// cannot be fetched are skipped; CRL failures drop only that CRL.
func FromURLs(ctx context.Context, urls []string, opts ...ClientOption) (*Directory, error) {
	c := NewClient(opts...)

	entries := make([]Entry, 0, len(urls))
	for _, iss := range urls {
		set, err := c.FetchJWKS(ctx, iss)
		if err != nil {
			c.log.Warn("skipping issuer: jwks fetch failed",
				logger.F("iss", iss), logger.Err(err))
			continue
		}

		entry := Entry{Iss: iss, Keys: set}
		for i := 0; i < set.Len(); i++ {
			key, ok := set.Key(i)
			if !ok {
				continue
			}
			kid, ok := key.KeyID()
			if !ok || kid == "" {
				continue
			}
			crl, err := c.FetchCRL(ctx, iss, kid)
			if err != nil {
				c.log.Debug("no CRL for key", logger.F("iss", iss), logger.F("kid", kid))
				continue
			}
			entry.CRLs = append(entry.CRLs, *crl)
		}
		entries = append(entries, entry)
	}

	return newDirectory(entries), nil
}

// get performs one GET through the injected transport.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, sh.WrapError(sh.KindSHLNetwork, "cannot create request", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, sh.NewNetworkError(sh.KindSHLNetwork, "request failed: "+err.Error(), 0, "", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, sh.NewNetworkError(sh.KindSHLNetwork,
			"request failed with status "+resp.Status, resp.StatusCode, resp.Status, url)
	}

	return io.ReadAll(resp.Body)
}
