package pdftext

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"
)

// PageReader returns the plain text of each page of the PDF at path.
type PageReader interface {
	ReadPages(ctx context.Context, path string) ([]string, error)
}

// PdfToText reads pages with the poppler pdftotext CLI tool.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText reader. If binPath is empty, "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// ReadPages runs pdftotext -layout and splits stdout on form feeds.
func (p *PdfToText) ReadPages(ctx context.Context, path string) ([]string, error) {
	cmd := exec.CommandContext(ctx, p.binPath, "-layout", "-enc", "UTF-8", path, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(err, "pdftext: pdftotext failed for %s: %s", path, strings.TrimSpace(stderr.String()))
	}
	return splitPages(stdout.String()), nil
}

// splitPages splits pdftotext output into pages. pdftotext terminates every
// page with a form feed, so a trailing empty element is dropped.
func splitPages(out string) []string {
	pages := strings.Split(out, "\f")
	if n := len(pages); n > 0 && strings.TrimSpace(pages[n-1]) == "" {
		pages = pages[:n-1]
	}
	return pages
}
