package shc

import (
	"encoding/json"

	"github.com/buger/jsonparser"

	sh "github.com/gofhir/smarthealth"
)

// MIMEType is the media type of a SMART Health Card file.
const MIMEType = sh.MIMETypeSmartHealthCard

// FileExtension is the conventional file extension.
const FileExtension = ".smart-health-card"

// File is the SMART Health Card file wrapper: a JSON object holding one
// or more compact JWS strings.
type File struct {
	VerifiableCredential []string `json:"verifiableCredential"`
}

// NewFile wraps one or more JWS strings.
func NewFile(jws ...string) *File {
	return &File{VerifiableCredential: jws}
}

// Marshal serializes the wrapper to its wire form.
func (f *File) Marshal() ([]byte, error) {
	if len(f.VerifiableCredential) == 0 {
		return nil, sh.NewError(sh.KindFileFormat, "File contains empty verifiableCredential array")
	}
	out, err := json.Marshal(f)
	if err != nil {
		return nil, sh.WrapError(sh.KindFileFormat, "file is not serializable", err)
	}
	return out, nil
}

// ParseFile parses and checks a SMART Health Card file. The
// verifiableCredential key must be present, an array, and non-empty.
func ParseFile(data []byte) (*File, error) {
	raw, dataType, _, err := jsonparser.Get(data, "verifiableCredential")
	if err != nil || dataType != jsonparser.Array {
		return nil, sh.NewError(sh.KindFileFormat,
			"File does not contain expected verifiableCredential array")
	}

	var creds []string
	var walkErr error
	_, _ = jsonparser.ArrayEach(raw, func(value []byte, vt jsonparser.ValueType, _ int, _ error) {
		if walkErr != nil {
			return
		}
		if vt != jsonparser.String {
			walkErr = sh.NewError(sh.KindFileFormat, "verifiableCredential entries must be strings")
			return
		}
		creds = append(creds, string(value))
	})
	if walkErr != nil {
		return nil, walkErr
	}

	if len(creds) == 0 {
		return nil, sh.NewError(sh.KindFileFormat, "File contains empty verifiableCredential array")
	}

	return &File{VerifiableCredential: creds}, nil
}
