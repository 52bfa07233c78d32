package data

import (
	"bufio"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// LoadText reads a whole UTF-8 text file into memory.
func LoadText(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "load text %s", path)
	}
	if !utf8.Valid(raw) {
		return "", errors.Errorf("load text %s: invalid UTF-8", path)
	}
	return string(raw), nil
}

// LoadDoc reads lines from a file, returning non-empty trimmed lines
func LoadDoc(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "load doc %s", path)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "load doc %s", path)
	}
	return lines, nil
}

// DownloadIfNotExists downloads a URL to path if path doesn't exist.
// The body is written to a temporary file in the same directory and only
// renamed into place once it is complete, so a failed download leaves
// nothing at path.
func DownloadIfNotExists(url, path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	resp, err := http.Get(url)
	if err != nil {
		return errors.Wrapf(err, "download %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("download %s: status %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.part")
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	_, err = io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "write %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "rename %s", path)
	}
	return nil
}

// Shuffle randomly shuffles xs in place with a seed
func Shuffle[T any](xs []T, seed uint64) {
	rng := rand.New(rand.NewPCG(seed, 0))
	rng.Shuffle(len(xs), func(i, j int) {
		xs[i], xs[j] = xs[j], xs[i]
	})
}
