package corpus

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/pkg/errors"
)

func TestVocabTablesAreInverses(t *testing.T) {
	c := FromText("the cat sat on the mat", Word)

	vi := c.VocabIndex()
	iv := c.IndexVocab()
	if len(vi) != len(iv) || len(vi) != c.VocabSize() {
		t.Fatalf("table sizes differ: %d, %d, %d", len(vi), len(iv), c.VocabSize())
	}
	for tok, idx := range vi {
		if iv[idx] != tok {
			t.Errorf("index_vocab[vocab_index[%q]] = %q", tok, iv[idx])
		}
	}
	for _, tok := range c.Tokens() {
		if _, ok := vi[tok]; !ok {
			t.Errorf("token %q missing from vocabulary", tok)
		}
	}
}

func TestVocabIsSorted(t *testing.T) {
	c := New([]string{"a", "b", "a", "c"})
	want := map[string]int{"a": 0, "b": 1, "c": 2}
	for tok, idx := range want {
		if got := c.VocabIndex()[tok]; got != idx {
			t.Errorf("vocab_index[%q]: expected %d, got %d", tok, idx, got)
		}
	}
}

func TestCharTokens(t *testing.T) {
	c := FromText("héllo", Char)
	want := []string{"h", "é", "l", "l", "o"}
	if !slices.Equal(c.Tokens(), want) {
		t.Errorf("char tokens: expected %v, got %v", want, c.Tokens())
	}
	if c.VocabSize() != 4 {
		t.Errorf("vocab size: expected 4, got %d", c.VocabSize())
	}
}

func TestCorpusIsImmutable(t *testing.T) {
	c := New([]string{"x", "y"})
	toks := c.Tokens()
	toks[0] = "z"
	c.VocabIndex()["z"] = 9

	if c.Tokens()[0] != "x" {
		t.Errorf("token slice aliased internal state")
	}
	if _, ok := c.VocabIndex()["z"]; ok {
		t.Errorf("vocab map aliased internal state")
	}
}

func TestPreprocessPipeline(t *testing.T) {
	pipe := Pipeline(LowerCase, ValidChar)
	if got := pipe("Hello, World! #1 ~ok?"); got != "hello, world! 1 ok?" {
		t.Errorf("pipeline: got %q", got)
	}

	c := FromText("Hi THERE hi", Word, WithPreprocess(pipe))
	if !slices.Equal(c.Vocab(), []string{"hi", "there"}) {
		t.Errorf("preprocessed vocab: got %v", c.Vocab())
	}
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chapter.txt")
	if err := os.WriteFile(path, []byte("abca"), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := FromFile(path, Char)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if !slices.Equal(c.Tokens(), []string{"a", "b", "c", "a"}) {
		t.Errorf("tokens: got %v", c.Tokens())
	}

	_, err = FromFile(filepath.Join(t.TempDir(), "missing.txt"), Char)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing file: expected fs.ErrNotExist, got %v", err)
	}
}

func TestParseKind(t *testing.T) {
	if k, ok := ParseKind("WORD"); !ok || k != Word {
		t.Errorf("ParseKind(WORD) = %v, %v", k, ok)
	}
	if _, ok := ParseKind("byte"); ok {
		t.Errorf("ParseKind(byte) should fail")
	}
}
