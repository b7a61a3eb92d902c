// Package shc issues and reads SMART Health Cards.
//
// An Issuer drives the full pipeline: Bundle validation and QR
// optimization, credential envelope construction, ES256 signing with
// DEFLATE compression, and packaging as a .smart-health-card file or a
// set of QR codes. A Reader inverts it, resolving verification keys
// either from an explicit key or through the issuer directory.
package shc
