package smarthealth

import "net/http"

// HTTPClient is the injected transport used everywhere the library has
// to touch the network: manifest requests, file location fetches, and
// directory lookups. *http.Client satisfies it; tests inject fakes.
// In-flight requests are cancelled through the request context.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
