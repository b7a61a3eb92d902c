// Package qr converts SMART Health Card JWS strings to and from their
// QR representation.
//
// The QR content uses the shc:/ scheme with a numeric-mode body: every
// JWS character c becomes the two-digit decimal of ord(c)-45, which
// restricts input to ordinals in [45,122] and lets QR encoders use the
// dense numeric mode. Long tokens are split into balanced chunks framed
// as shc:/<n>/<N>/<digits>.
//
// The codec itself is pure; RenderPNG materializes a chunk as a PNG
// image through go-qrcode.
package qr
