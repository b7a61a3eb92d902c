package shl

import (
	"context"
	"io"
	"net/http"
	"time"

	sh "github.com/gofhir/smarthealth"
)

// defaultHTTPClient mirrors the library-wide default transport.
var defaultHTTPClient sh.HTTPClient = &http.Client{Timeout: 30 * time.Second}

// mapStatus converts a non-2xx manifest-endpoint response into the SHL
// error for its status code. It is the only status-specific mapping;
// getBodyUniform reports every non-2xx status as a network error.
func mapStatus(status int, statusText, url string) *sh.Error {
	switch {
	case status == http.StatusUnauthorized:
		return sh.NewNetworkError(sh.KindSHLInvalidPasscode, "Invalid or missing passcode", status, statusText, url)
	case status == http.StatusNotFound:
		return sh.NewNetworkError(sh.KindSHLManifestNotFound, "SHL manifest not found", status, statusText, url)
	case status == http.StatusTooManyRequests:
		return sh.NewNetworkError(sh.KindSHLManifestRateLimit, "SHL manifest rate limit exceeded", status, statusText, url)
	default:
		return sh.NewNetworkError(sh.KindSHLNetwork,
			"request failed with status "+statusText, status, statusText, url)
	}
}

// fetchBody performs one request and returns the response body, mapping
// transport failures and non-2xx statuses to SHL errors.
func fetchBody(client sh.HTTPClient, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, sh.NewNetworkError(sh.KindSHLNetwork, "request failed: "+err.Error(), 0, "", req.URL.String())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, mapStatus(resp.StatusCode, resp.Status, req.URL.String())
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, sh.NewNetworkError(sh.KindSHLNetwork, "reading response failed: "+err.Error(), 0, "", req.URL.String())
	}
	return body, nil
}

// getBody GETs a URL through the injected client, mapping failures with
// the viewer's status-specific rules.
func getBody(ctx context.Context, client sh.HTTPClient, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, sh.WrapError(sh.KindSHLNetwork, "cannot create request", err)
	}
	return fetchBody(client, req)
}

// getBodyUniform GETs a URL and reports every failure, whatever the
// status code, as a network error carrying status, status text and URL.
// The builder's default file loader uses it: a storage backend's 401 or
// 404 is a storage failure, not a manifest-protocol signal.
func getBodyUniform(ctx context.Context, client sh.HTTPClient, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, sh.WrapError(sh.KindSHLNetwork, "cannot create request", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, sh.NewNetworkError(sh.KindSHLNetwork, "request failed: "+err.Error(), 0, "", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, sh.NewNetworkError(sh.KindSHLNetwork,
			"request failed with status "+resp.Status, resp.StatusCode, resp.Status, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, sh.NewNetworkError(sh.KindSHLNetwork, "reading response failed: "+err.Error(), 0, "", url)
	}
	return body, nil
}
