// Package main implements the smarthealth CLI tool, a thin demo surface
// over the library: it issues SMART Health Cards from FHIR Bundles,
// verifies them, and renders QR code images.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofhir/smarthealth/qr"
	"github.com/gofhir/smarthealth/shc"
)

const usage = `smarthealth - SMART Health Cards tool

Usage:
  smarthealth issue  -iss <url> -key <priv.pem> -pub <pub.pem> <bundle.json>
  smarthealth verify -pub <pub.pem> <card-file.smart-health-card>
  smarthealth qr     -iss <url> -key <priv.pem> -pub <pub.pem> -out <dir> <bundle.json>

Examples:
  smarthealth issue -iss https://issuer.example.org -key priv.pem -pub pub.pem bundle.json
  smarthealth verify -pub pub.pem card.smart-health-card
  smarthealth qr -iss https://issuer.example.org -key priv.pem -pub pub.pem -out ./codes bundle.json
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "issue":
		err = runIssue(os.Args[2:])
	case "verify":
		err = runVerify(os.Args[2:])
	case "qr":
		err = runQR(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "smarthealth: %v\n", err)
		os.Exit(1)
	}
}

// issuerFlags holds the flags shared by issue and qr.
type issuerFlags struct {
	iss     string
	keyPath string
	pubPath string
}

func (f *issuerFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.iss, "iss", "", "issuer URL (iss claim)")
	fs.StringVar(&f.keyPath, "key", "", "path to the PEM private key")
	fs.StringVar(&f.pubPath, "pub", "", "path to the PEM public key")
}

func (f *issuerFlags) issuer() (*shc.Issuer, error) {
	if f.iss == "" || f.keyPath == "" || f.pubPath == "" {
		return nil, fmt.Errorf("-iss, -key and -pub are required")
	}
	priv, err := os.ReadFile(f.keyPath)
	if err != nil {
		return nil, err
	}
	pub, err := os.ReadFile(f.pubPath)
	if err != nil {
		return nil, err
	}
	return shc.NewIssuer(f.iss, priv, pub)
}

func readBundle(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var bundle map[string]any
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bundle, nil
}

func runIssue(args []string) error {
	fs := flag.NewFlagSet("issue", flag.ExitOnError)
	var flags issuerFlags
	flags.register(fs)
	asFile := fs.Bool("file", false, "emit the .smart-health-card file wrapper instead of the bare JWS")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("expected exactly one bundle file")
	}

	issuer, err := flags.issuer()
	if err != nil {
		return err
	}
	bundle, err := readBundle(fs.Arg(0))
	if err != nil {
		return err
	}

	card, err := issuer.Issue(bundle)
	if err != nil {
		return err
	}

	if *asFile {
		data, err := card.File().Marshal()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(card.JWS())
	return nil
}

func runVerify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	pubPath := fs.String("pub", "", "path to the PEM public key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *pubPath == "" {
		return fmt.Errorf("-pub is required")
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("expected exactly one card file")
	}

	pub, err := os.ReadFile(*pubPath)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}

	reader := shc.NewReader(shc.WithPublicKey(pub))
	cards, err := reader.FromFileJSON(context.Background(), data)
	if err != nil {
		return err
	}

	for _, card := range cards {
		out, err := json.MarshalIndent(card.Payload(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	}
	return nil
}

func runQR(args []string) error {
	fs := flag.NewFlagSet("qr", flag.ExitOnError)
	var flags issuerFlags
	flags.register(fs)
	outDir := fs.String("out", ".", "directory for the PNG files")
	level := fs.String("level", "L", "error correction level (L, M, Q, H)")
	size := fs.Int("size", 512, "image size in pixels")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("expected exactly one bundle file")
	}

	issuer, err := flags.issuer()
	if err != nil {
		return err
	}
	bundle, err := readBundle(fs.Arg(0))
	if err != nil {
		return err
	}

	contents, err := issuer.IssueQR(bundle)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}
	for i, content := range contents {
		png, err := qr.RenderPNG(content, qr.ErrorCorrectionLevel(*level), *size)
		if err != nil {
			return err
		}
		name := filepath.Join(*outDir, fmt.Sprintf("card-%d.png", i+1))
		if err := os.WriteFile(name, png, 0o644); err != nil {
			return err
		}
		fmt.Println(name)
	}
	return nil
}
