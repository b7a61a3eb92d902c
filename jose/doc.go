// Package jose signs and verifies the compact JWS form of SMART Health
// Cards.
//
// The JOSE surface is deliberately narrow: ES256 over P-256 only, with
// the payload optionally raw-DEFLATE compressed (zip=DEF, no zlib
// wrapper) and kid fixed to the RFC 7638 thumbprint of the verification
// key. Key material is accepted as PEM (SPKI/PKCS#8), JWK JSON, a
// jwk.Key handle or a raw *ecdsa key, and normalized on entry.
package jose
