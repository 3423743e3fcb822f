// Package pdftext turns PDF bytes into cleaned, sectioned text.
package pdftext

import (
	"bytes"
	"context"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/paper-cli/internal/model"
)

const (
	// MinCharsPerPage is the text density below which a page looks scanned.
	MinCharsPerPage = 50
	// MaxScannedChars caps the scanned-document threshold for long files.
	MaxScannedChars = 2000
	// DefaultRepeatMinPages is how many pages a header line must recur on.
	DefaultRepeatMinPages = 3
)

// Extractor converts PDF bytes into model.ExtractedText. It holds no state
// between calls and is safe for concurrent use.
type Extractor struct {
	pages     PageReader
	repeatMin int
	inspect   func([]byte) (*Structure, error)
	log       *zap.Logger
}

// New creates an Extractor. A nil reader defaults to pdftotext on PATH;
// repeatMin <= 0 uses DefaultRepeatMinPages.
func New(reader PageReader, repeatMin int) *Extractor {
	if reader == nil {
		reader = NewPdfToText("")
	}
	if repeatMin <= 0 {
		repeatMin = DefaultRepeatMinPages
	}
	return &Extractor{
		pages:     reader,
		repeatMin: repeatMin,
		inspect:   inspect,
		log:       zap.L().With(zap.String("component", "pdftext")),
	}
}

// Extract parses data. Failures are *model.Error values of kind
// EncryptedDocument or CorruptDocument. A scanned document is not an error
// here: callers check IsProbablyScanned.
func (e *Extractor) Extract(ctx context.Context, data []byte) (*model.ExtractedText, error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF-")) {
		return nil, model.NewError(model.ErrCorruptDocument, "not a PDF", nil)
	}

	st, err := e.inspect(data)
	if err != nil {
		return nil, err
	}

	raw, err := e.readPages(ctx, data)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "pdftext: cancelled")
		}
		return nil, model.NewError(model.ErrCorruptDocument, "text extraction failed", err)
	}

	pages := st.Pages
	if pages == 0 {
		pages = len(raw)
	}

	text := cleanPages(raw, e.repeatMin)
	sec := splitSections(text, st.Title)
	chars := utf8.RuneCountInString(text)

	out := &model.ExtractedText{
		Title:             sec.title,
		Author:            st.Author,
		Abstract:          sec.abstract,
		Body:              sec.body,
		Other:             sec.other,
		Pages:             pages,
		Chars:             chars,
		IsProbablyScanned: IsProbablyScanned(pages, chars),
		IsEncrypted:       st.Encrypted,
	}

	e.log.Debug("extracted text",
		zap.Int("pages", out.Pages),
		zap.Int("chars", out.Chars),
		zap.Bool("abstract", out.Abstract != ""),
		zap.Bool("scanned", out.IsProbablyScanned),
	)
	return out, nil
}

// IsProbablyScanned reports whether a document has too little text for its
// page count to have a usable text layer.
func IsProbablyScanned(pages, chars int) bool {
	if pages <= 0 {
		return false
	}
	return chars < min(MinCharsPerPage*pages, MaxScannedChars)
}

// readPages hands data to the page reader through a temporary file that is
// removed before returning.
func (e *Extractor) readPages(ctx context.Context, data []byte) ([]string, error) {
	f, err := os.CreateTemp("", "paper-cli-*.pdf")
	if err != nil {
		return nil, eris.Wrap(err, "pdftext: create temp file")
	}
	path := f.Name()
	defer os.Remove(path) //nolint:errcheck

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return nil, eris.Wrap(err, "pdftext: write temp file")
	}
	if err := f.Close(); err != nil {
		return nil, eris.Wrap(err, "pdftext: close temp file")
	}

	pages, err := e.pages.ReadPages(ctx, path)
	if err != nil {
		return nil, err
	}
	for i, p := range pages {
		pages[i] = strings.ToValidUTF8(p, "")
	}
	return pages, nil
}
