package verify

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// TesseractRecognizer shells out to the tesseract binary, feeding the image
// on stdin and reading recognized text from stdout.
type TesseractRecognizer struct {
	binary string
}

// NewTesseractRecognizer builds a recognizer for the given binary path.
func NewTesseractRecognizer(binary string) *TesseractRecognizer {
	if binary == "" {
		binary = "tesseract"
	}
	return &TesseractRecognizer{binary: binary}
}

// ExtractText runs OCR over the image bytes.
func (r *TesseractRecognizer) ExtractText(ctx context.Context, image []byte) (string, error) {
	cmd := exec.CommandContext(ctx, r.binary, "stdin", "stdout")
	cmd.Stdin = bytes.NewReader(image)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract: %w (%s)", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return out.String(), nil
}
