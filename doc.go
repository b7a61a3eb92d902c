// Package smarthealth provides issuance, verification, sharing and
// resolution of health-data credentials following the SMART Health Cards
// and SMART Health Links specifications.
//
// The library is transport-agnostic: it performs no I/O of its own and
// takes injected HTTP clients and storage callbacks wherever data has to
// move. Everything else is pure computation and can be used without a
// network.
//
// # Quick Start
//
//	import (
//	    sh "github.com/gofhir/smarthealth"
//	    "github.com/gofhir/smarthealth/shc"
//	)
//
//	issuer, err := shc.NewIssuer("https://issuer.example.org", privKey, pubKey)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	card, err := issuer.Issue(bundle)
//	if err != nil {
//	    var serr *sh.Error
//	    if errors.As(err, &serr) {
//	        fmt.Println(serr.Kind, serr.Message)
//	    }
//	}
//	fmt.Println(card.JWS())
//
// # Packages
//
//   - fhirbundle: FHIR Bundle validation and QR-density optimization
//   - vc: W3C Verifiable Credential payload construction
//   - jose: ES256 JWS signing/verification with raw-DEFLATE payloads
//   - qr: numeric-mode QR codec with balanced chunking
//   - shc: SMART Health Card issuer, reader and file wrapper
//   - shl: SMART Health Link generation, encryption, manifests and viewing
//   - directory: issuer directory (JWKS and CRL) client
//
// # Architecture
//
// The package follows the layering of the reference SMART Health Cards
// stack, adapted for Go:
//
//   - Small interfaces (1-2 methods each) for injected I/O
//   - Value objects for SHLs and credentials, built by factories
//   - Functional options for configuration
//   - Context-based cancellation on every operation that may touch the network
package smarthealth
