package smarthealth

import (
	"fmt"
)

// ErrorKind identifies the category of a library error.
type ErrorKind string

// Error kinds produced by the library. Low-level kinds surface unchanged
// through issuers, readers and builders; HTTP status codes are mapped to
// their kinds exactly once, at the network boundary.
const (
	// KindBundleValidation indicates a malformed FHIR Bundle.
	KindBundleValidation ErrorKind = "bundle-validation"
	// KindInvalidBundleReference indicates a reference that does not
	// resolve to a Bundle entry.
	KindInvalidBundleReference ErrorKind = "invalid-bundle-reference"
	// KindVCValidation indicates an invalid Verifiable Credential envelope.
	KindVCValidation ErrorKind = "vc-validation"
	// KindPayloadValidation indicates malformed JWT/JWS input.
	KindPayloadValidation ErrorKind = "payload-validation"
	// KindSignatureVerification indicates an ECDSA signature mismatch.
	KindSignatureVerification ErrorKind = "signature-verification"
	// KindExpiration indicates an expired credential.
	KindExpiration ErrorKind = "expiration"
	// KindQRCode indicates a QR encoding, decoding or chunking failure.
	KindQRCode ErrorKind = "qr-code"
	// KindFileFormat indicates a malformed SMART Health Card file wrapper.
	KindFileFormat ErrorKind = "file-format"

	// KindSHL is the generic SMART Health Link failure.
	KindSHL ErrorKind = "shl"
	// KindSHLFormat indicates a malformed shlink URI or payload.
	KindSHLFormat ErrorKind = "shl-format"
	// KindSHLDecryption indicates a JWE decryption failure.
	KindSHLDecryption ErrorKind = "shl-decryption"
	// KindSHLExpired indicates an expired SMART Health Link.
	KindSHLExpired ErrorKind = "shl-expired"
	// KindSHLInvalidPasscode indicates a missing or rejected passcode.
	KindSHLInvalidPasscode ErrorKind = "shl-invalid-passcode"
	// KindSHLInvalidContent indicates unsupported or corrupt SHL content.
	KindSHLInvalidContent ErrorKind = "shl-invalid-content"
	// KindSHLManifest indicates a manifest assembly or parsing failure.
	KindSHLManifest ErrorKind = "shl-manifest"
	// KindSHLManifestNotFound indicates a 404 from the manifest endpoint.
	KindSHLManifestNotFound ErrorKind = "shl-manifest-not-found"
	// KindSHLManifestRateLimit indicates a 429 from the manifest endpoint.
	KindSHLManifestRateLimit ErrorKind = "shl-manifest-rate-limit"
	// KindSHLNetwork indicates a transport-level or 5xx failure.
	KindSHLNetwork ErrorKind = "shl-network"
	// KindSHLViewer indicates invalid viewer input.
	KindSHLViewer ErrorKind = "shl-viewer"
)

// Error is the error type shared by every package in the module. It
// carries a kind plus a human message, and optionally wraps a cause.
// Network-mapped errors additionally carry the HTTP status, status text
// and URL of the failed exchange.
type Error struct {
	// Kind categorizes the error.
	Kind ErrorKind

	// Message is the human-readable description.
	Message string

	// Err is the wrapped cause, if any.
	Err error

	// Status is the HTTP status code for network-mapped errors, or 0.
	Status int

	// StatusText is the HTTP status line text for network-mapped errors.
	StatusText string

	// URL is the request URL for network-mapped errors.
	URL string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind. This makes
// errors.Is(err, &Error{Kind: k}) usable for kind checks.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError creates an error of the given kind.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf creates an error of the given kind with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError wraps a cause under the given kind. The cause remains
// reachable through errors.Unwrap.
func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// IsKind reports whether err (or anything it wraps) is a library error of
// the given kind.
func IsKind(err error, kind ErrorKind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// KindOf returns the kind of err if it is a library error, or "" otherwise.
func KindOf(err error) ErrorKind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}

// IsLibraryError reports whether err originated in this module.
func IsLibraryError(err error) bool {
	return KindOf(err) != ""
}

// NewNetworkError creates an error carrying details of a failed HTTP
// exchange. It is produced exactly once, at the network boundary.
func NewNetworkError(kind ErrorKind, message string, status int, statusText, url string) *Error {
	return &Error{
		Kind:       kind,
		Message:    message,
		Status:     status,
		StatusText: statusText,
		URL:        url,
	}
}
