package verify

import (
	"context"
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "lowercases", in: "RASH Tech", want: "rash tech"},
		{name: "strips punctuation", in: "Subscribed!", want: "subscribed"},
		{name: "collapses whitespace", in: "rash \t tech\n\nsubscribed", want: "rash tech subscribed"},
		{name: "drops symbols", in: "100% legit ✓", want: "100 legit"},
		{name: "empty", in: "", want: ""},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			if got := Normalize(test.in); got != test.want {
				t.Errorf("Normalize(%q): got %q, want %q", test.in, got, test.want)
			}
		})
	}
}

func staticRecognizer(text string) TextRecognizer {
	return RecognizerFunc(func(ctx context.Context, image []byte) (string, error) {
		return text, nil
	})
}

func TestKeywordClassifierEvaluate(t *testing.T) {
	t.Parallel()
	markers := []string{"rash tech", "subscribed"}
	tests := []struct {
		name string
		text string
		want bool
	}{
		{
			name: "all markers present",
			text: "YouTube\nRASH TECH\nSubscribed ✓ 1.2M subscribers",
			want: true,
		},
		{
			name: "punctuation around markers",
			text: "[rash tech] ... subscribed!",
			want: true,
		},
		{
			name: "missing subscription marker",
			text: "RASH TECH — Subscribe",
			want: false,
		},
		{
			name: "unrelated screenshot",
			text: "lorem ipsum dolor",
			want: false,
		},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			classifier := NewKeywordClassifier(staticRecognizer(test.text))
			got, err := classifier.Evaluate(context.Background(), []byte("img"), markers)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if got != test.want {
				t.Errorf("Evaluate: got %v, want %v", got, test.want)
			}
		})
	}
}

func TestKeywordClassifierUnreadable(t *testing.T) {
	t.Parallel()
	classifier := NewKeywordClassifier(RecognizerFunc(func(ctx context.Context, image []byte) (string, error) {
		return "", errors.New("decode failure")
	}))
	_, err := classifier.Evaluate(context.Background(), []byte("img"), []string{"x"})
	if !errors.Is(err, ErrUnreadable) {
		t.Fatalf("got %v, want ErrUnreadable", err)
	}

	_, err = classifier.Evaluate(context.Background(), nil, []string{"x"})
	if !errors.Is(err, ErrUnreadable) {
		t.Fatalf("empty image: got %v, want ErrUnreadable", err)
	}
}
