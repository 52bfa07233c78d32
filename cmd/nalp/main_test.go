package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadImages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "images.csv")
	body := "7,0,255,128,64\n\n0 10 20 30\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := loadImages(path, 4)
	if err != nil {
		t.Fatalf("loadImages: %v", err)
	}
	r, c := m.Dims()
	if r != 2 || c != 4 {
		t.Fatalf("dims: got %dx%d, want 2x4", r, c)
	}
	if m.At(0, 0) != 0 || m.At(0, 1) != 255 {
		t.Errorf("label column not dropped: first row starts %v, %v", m.At(0, 0), m.At(0, 1))
	}
	if m.At(1, 3) != 30 {
		t.Errorf("second row: got %v", m.At(1, 3))
	}

	if _, err := loadImages(path, 3); err == nil {
		t.Errorf("expected a width error")
	}
}
