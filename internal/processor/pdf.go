package processor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrAccessDenied is returned when a document path resolves outside the allowed root
var ErrAccessDenied = errors.New("access denied: path outside allowed directory")

// PageReader returns the plain text of up to maxPages pages of a document, in page order
type PageReader func(path string, maxPages int) ([]string, error)

// ReadPDFPages extracts the text of each page of a PDF file
func ReadPDFPages(path string, maxPages int) (pages []string, err error) {
	// the pdf package panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("failed to parse PDF: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	total := r.NumPage()
	if maxPages > 0 && total > maxPages {
		total = maxPages
	}

	pages = make([]string, 0, total)
	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text of page %d: %w", i, err)
		}
		pages = append(pages, text)
	}

	return pages, nil
}

// SafePath resolves path (following symlinks) and checks that it lies inside root
func SafePath(root, path string) (string, error) {
	allowed, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve allowed directory: %w", err)
	}
	allowed, err = filepath.Abs(allowed)
	if err != nil {
		return "", fmt.Errorf("failed to resolve allowed directory: %w", err)
	}

	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		return "", err
	}
	resolved, err = filepath.Abs(resolved)
	if err != nil {
		return "", err
	}

	if !strings.HasPrefix(resolved, allowed+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrAccessDenied, path)
	}
	return resolved, nil
}
