package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrUnreadable marks an image the recognizer could not process. It is
// distinct from a rejection: the caller should ask the user to retry rather
// than record a decline.
var ErrUnreadable = errors.New("image unreadable")

// TextRecognizer extracts text from an image. The model behind it is a black
// box; implementations may shell out to an OCR engine or call a service.
type TextRecognizer interface {
	ExtractText(ctx context.Context, image []byte) (string, error)
}

// RecognizerFunc adapts a function to the TextRecognizer interface.
type RecognizerFunc func(ctx context.Context, image []byte) (string, error)

func (f RecognizerFunc) ExtractText(ctx context.Context, image []byte) (string, error) {
	return f(ctx, image)
}

// Classifier decides whether submitted evidence is acceptable.
type Classifier interface {
	Evaluate(ctx context.Context, image []byte, requiredMarkers []string) (bool, error)
}

// KeywordClassifier accepts evidence when every required marker occurs in
// the normalized recognized text.
type KeywordClassifier struct {
	recognizer TextRecognizer
}

// NewKeywordClassifier builds a classifier over the given recognizer.
func NewKeywordClassifier(recognizer TextRecognizer) *KeywordClassifier {
	return &KeywordClassifier{recognizer: recognizer}
}

// Evaluate runs recognition and marker matching. Recognition failures are
// returned as errors wrapping ErrUnreadable, never as a rejection.
func (c *KeywordClassifier) Evaluate(ctx context.Context, image []byte, requiredMarkers []string) (bool, error) {
	if len(image) == 0 {
		return false, fmt.Errorf("%w: empty image", ErrUnreadable)
	}
	text, err := c.recognizer.ExtractText(ctx, image)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	normalized := Normalize(text)
	for _, marker := range requiredMarkers {
		if !strings.Contains(normalized, Normalize(marker)) {
			return false, nil
		}
	}
	return true, nil
}

// Normalize lower-cases the text, strips punctuation and collapses runs of
// whitespace into single spaces.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	lastSpace := true
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			// dropped
		default:
			b.WriteRune(r)
			lastSpace = false
		}
	}
	return strings.TrimRight(b.String(), " ")
}
