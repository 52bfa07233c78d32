package encoder

import (
	"slices"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

func TestUsageBeforeLearn(t *testing.T) {
	intEnc := NewIntegerEncoder(nil)
	countEnc := NewCountEncoder(nil)
	embEnc := NewEmbeddingEncoder(nil)

	checks := []struct {
		name string
		call func() error
	}{
		{"integer encode", func() error { _, err := intEnc.Encode([]string{"a"}); return err }},
		{"integer decode", func() error { _, err := intEnc.Decode([]int{0}); return err }},
		{"count encode", func() error { _, err := countEnc.Encode([]string{"a"}); return err }},
		{"count decode", func() error { _, err := countEnc.Decode([]float64{1}); return err }},
		{"count encode docs", func() error { _, err := countEnc.EncodeDocuments([][]string{{"a"}}); return err }},
		{"embedding encode", func() error { _, err := embEnc.Encode([]string{"a"}); return err }},
		{"embedding decode", func() error { _, err := embEnc.Decode(mat.NewDense(1, 1, nil)); return err }},
	}
	for _, c := range checks {
		if err := c.call(); !errors.Is(err, ErrNotLearned) {
			t.Errorf("%s: expected ErrNotLearned, got %v", c.name, err)
		}
	}
}

func TestIntegerRoundTrip(t *testing.T) {
	enc := NewIntegerEncoder(nil)
	tokens := []string{"a", "b", "a", "c"}
	if err := enc.LearnVocabulary(
		map[string]int{"a": 0, "b": 1, "c": 2},
		map[int]string{0: "a", 1: "b", 2: "c"},
	); err != nil {
		t.Fatal(err)
	}

	codes, err := enc.Encode(tokens)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(codes, []int{0, 1, 0, 2}) {
		t.Errorf("Encode: got %v, want [0 1 0 2]", codes)
	}

	decoded, err := enc.Decode([]int{0, 1, 0, 2})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(decoded, tokens) {
		t.Errorf("Decode: got %v, want %v", decoded, tokens)
	}
}

func TestIntegerLearnFromTokens(t *testing.T) {
	enc := NewIntegerEncoder(nil)
	text := strings.Split("to be or not to be that is the question", " ")
	if err := enc.Learn(text); err != nil {
		t.Fatal(err)
	}
	if enc.VocabSize() != 8 {
		t.Errorf("VocabSize: expected 8, got %d", enc.VocabSize())
	}

	codes, err := enc.Encode(text)
	if err != nil {
		t.Fatal(err)
	}
	back, err := enc.Decode(codes)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(back, text) {
		t.Errorf("round trip: got %v", back)
	}

	if _, err := enc.Encode([]string{"whether"}); !errors.Is(err, ErrUnknownToken) {
		t.Errorf("unknown token: expected ErrUnknownToken, got %v", err)
	}
	if _, err := enc.Decode([]int{99}); !errors.Is(err, ErrUnknownToken) {
		t.Errorf("unknown code: expected ErrUnknownToken, got %v", err)
	}
}

func TestIntegerRejectsMismatchedTables(t *testing.T) {
	enc := NewIntegerEncoder(nil)
	err := enc.LearnVocabulary(map[string]int{"a": 0}, map[int]string{0: "b"})
	if err == nil {
		t.Errorf("expected error for non-inverse tables")
	}

	// The empty token must not match the zero value of a missing index.
	err = enc.LearnVocabulary(map[string]int{"": 5}, map[int]string{3: "x"})
	if err == nil {
		t.Errorf("expected error for an index missing from the reverse table")
	}
	if enc.VocabSize() != 0 {
		t.Errorf("rejected tables were adopted: vocab size %d", enc.VocabSize())
	}
}

func TestCountVectorLength(t *testing.T) {
	enc := NewCountEncoder(nil)
	corpus := strings.Fields("a a a b b c d d d d e")
	if err := enc.Learn(corpus, WithTopTokens(3)); err != nil {
		t.Fatal(err)
	}
	// top 3 by frequency: d(4) a(3) b(2), ordered alphabetically
	if !slices.Equal(enc.Features(), []string{"a", "b", "d"}) {
		t.Errorf("Features: got %v", enc.Features())
	}

	for _, in := range [][]string{nil, {"a"}, corpus, strings.Fields("z z z z z z z z z z z z")} {
		vec, err := enc.Encode(in)
		if err != nil {
			t.Fatal(err)
		}
		if len(vec) != 3 {
			t.Errorf("Encode(%v): length %d, want 3", in, len(vec))
		}
	}

	wide := NewCountEncoder(nil)
	if err := wide.Learn([]string{"x", "y"}, WithTopTokens(10)); err != nil {
		t.Fatal(err)
	}
	vec, _ := wide.Encode([]string{"y", "y"})
	if len(vec) != 10 || vec[1] != 2 {
		t.Errorf("padded vector: got %v", vec)
	}
}

func TestCountDecodeIsLossy(t *testing.T) {
	enc := NewCountEncoder(nil)
	if err := enc.Learn(strings.Fields("the cat sat on the mat")); err != nil {
		t.Fatal(err)
	}
	vec, err := enc.Encode(strings.Fields("the mat the cat"))
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := enc.Decode(vec)
	if err != nil {
		t.Fatal(err)
	}
	// order and multiplicity are dropped; the set survives in feature order
	if !slices.Equal(decoded, []string{"cat", "mat", "the"}) {
		t.Errorf("Decode: got %v", decoded)
	}

	if _, err := enc.Decode([]float64{1}); err == nil {
		t.Errorf("expected width error")
	}
}

func TestCountDocuments(t *testing.T) {
	enc := NewCountEncoder(nil)
	docs := [][]string{{"a", "b"}, {"b", "b", "c"}}
	if err := enc.Learn(slices.Concat(docs...), WithTopTokens(3)); err != nil {
		t.Fatal(err)
	}
	m, err := enc.EncodeDocuments(docs)
	if err != nil {
		t.Fatal(err)
	}
	if r, c := m.Dims(); r != 2 || c != 3 {
		t.Fatalf("dims: %dx%d", r, c)
	}
	if m.At(1, 1) != 2 {
		t.Errorf("count of b in doc 1: got %v", m.At(1, 1))
	}
	tokens, err := enc.DecodeDocuments(m)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(tokens, []string{"a", "b", "b", "c"}) {
		t.Errorf("DecodeDocuments: got %v", tokens)
	}
}

func TestCountRelearnReplacesState(t *testing.T) {
	enc := NewCountEncoder(nil)
	_ = enc.Learn([]string{"a"}, WithTopTokens(2))
	_ = enc.Learn([]string{"q", "r", "s"}, WithTopTokens(5))
	vec, _ := enc.Encode([]string{"a", "q"})
	if len(vec) != 5 || vec[0] != 1 {
		t.Errorf("relearn: got %v", vec)
	}
}

func TestEmbeddingRoundTrip(t *testing.T) {
	enc := NewEmbeddingEncoder(nil)
	text := strings.Fields("the king rules the land and the queen rules the land the dog barks at the cat")
	err := enc.Learn(text, WithDimension(8), WithWindow(2), WithEpochs(3), WithNegatives(2), WithSeed(11))
	if err != nil {
		t.Fatal(err)
	}

	m, err := enc.Encode(text)
	if err != nil {
		t.Fatal(err)
	}
	if r, c := m.Dims(); r != len(text) || c != 8 {
		t.Fatalf("Encode dims: %dx%d", r, c)
	}

	decoded, err := enc.Decode(m)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(decoded, text) {
		t.Errorf("Decode of encoded rows: got %v", decoded)
	}

	similar, err := enc.MostSimilar("king", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(similar) != 3 || slices.Contains(similar, "king") {
		t.Errorf("MostSimilar: got %v", similar)
	}
	if none, err := enc.MostSimilar("king", 0); err != nil || len(none) != 0 {
		t.Errorf("MostSimilar with k=0: got %v, %v", none, err)
	}
	if _, err := enc.MostSimilar("king", -1); err == nil {
		t.Errorf("expected error for a negative k")
	}

	if _, err := enc.Encode([]string{"wolf"}); !errors.Is(err, ErrUnknownToken) {
		t.Errorf("unknown token: expected ErrUnknownToken, got %v", err)
	}
	if _, err := enc.Decode(mat.NewDense(1, 3, nil)); err == nil {
		t.Errorf("expected dimension mismatch error")
	}
}

func TestEmbeddingMinCount(t *testing.T) {
	enc := NewEmbeddingEncoder(nil)
	err := enc.Learn(strings.Fields("a a b c c"), WithDimension(4), WithMinCount(2), WithEpochs(1))
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(enc.Vocab(), []string{"a", "c"}) {
		t.Errorf("Vocab: got %v", enc.Vocab())
	}
	if err := enc.Learn([]string{"x"}, WithMinCount(5)); err == nil {
		t.Errorf("expected error when nothing reaches min count")
	}
}
