package qr

import (
	qrcode "github.com/skip2/go-qrcode"

	sh "github.com/gofhir/smarthealth"
)

// recoveryByLevel maps the codec's levels onto go-qrcode recovery levels.
var recoveryByLevel = map[ErrorCorrectionLevel]qrcode.RecoveryLevel{
	LevelLow:      qrcode.Low,
	LevelMedium:   qrcode.Medium,
	LevelQuartile: qrcode.High,
	LevelHigh:     qrcode.Highest,
}

// RenderPNG materializes one framed QR content string as a PNG image of
// size x size pixels. The content must come from Encode.
func RenderPNG(content string, level ErrorCorrectionLevel, size int) ([]byte, error) {
	if _, err := ParseChunk(content); err != nil {
		return nil, err
	}
	if size <= 0 {
		size = 512
	}

	recovery, ok := recoveryByLevel[level]
	if !ok {
		recovery = qrcode.Low
	}

	png, err := qrcode.Encode(content, recovery, size)
	if err != nil {
		return nil, sh.WrapError(sh.KindQRCode, "QR image rendering failed", err)
	}
	return png, nil
}
