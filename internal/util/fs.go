package util

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}

func SafeJoin(root, name string) string {
	return filepath.Join(root, filepath.Base(name))
}

func IsPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// ValidatePDF rejects missing, non-.pdf and empty files before the parser sees them.
func ValidatePDF(path string) error {
	name := filepath.Base(path)
	if !IsPDF(name) {
		return &ExtractionError{File: name, Err: errors.New("not a .pdf file")}
	}
	st, err := os.Stat(path)
	if err != nil {
		return &ExtractionError{File: name, Err: err}
	}
	if st.IsDir() {
		return &ExtractionError{File: name, Err: errors.New("is a directory")}
	}
	if st.Size() == 0 {
		return &ExtractionError{File: name, Err: errors.New("empty file")}
	}
	return nil
}

// ListPDFs returns the .pdf files directly under dir, sorted by name.
func ListPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input dir: %w", err)
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !IsPDF(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
