package pdftext

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rotisserie/eris"

	"github.com/sells-group/paper-cli/internal/model"
)

// Structure is what the structural pass learns about a PDF.
type Structure struct {
	Pages     int
	Title     string
	Author    string
	Encrypted bool
}

var disableConfigDir sync.Once

// inspect reads the cross-reference table and document info with pdfcpu.
// It never guesses passwords: a file that needs a user password fails with
// EncryptedDocument, while owner-password-only files open and are flagged.
func inspect(data []byte) (st *Structure, err error) {
	disableConfigDir.Do(api.DisableConfigDir)

	defer func() {
		if r := recover(); r != nil {
			st = nil
			err = model.NewError(model.ErrCorruptDocument, fmt.Sprintf("pdf reader panic: %v", r), nil)
		}
	}()

	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, classifyReadError(err)
	}

	if ctx.PageCount == 0 {
		if err := ctx.EnsurePageCount(); err != nil {
			return nil, model.NewError(model.ErrCorruptDocument, "count pages", eris.Wrap(err, "pdfcpu"))
		}
	}

	st = &Structure{
		Pages:     ctx.PageCount,
		Encrypted: ctx.Encrypt != nil,
	}
	st.Title, st.Author = infoStrings(ctx.XRefTable)
	return st, nil
}

func classifyReadError(err error) error {
	if strings.Contains(strings.ToLower(err.Error()), "password") {
		return model.NewError(model.ErrEncryptedDocument, "document requires a password", eris.Wrap(err, "pdfcpu"))
	}
	return model.NewError(model.ErrCorruptDocument, "unreadable PDF", eris.Wrap(err, "pdfcpu"))
}

// infoStrings returns the Title and Author entries of the Info dictionary.
// Missing or undecodable entries come back empty.
func infoStrings(xt *pdfmodel.XRefTable) (title, author string) {
	if xt == nil || xt.Info == nil {
		return "", ""
	}
	d, err := xt.DereferenceDict(*xt.Info)
	if err != nil || d == nil {
		return "", ""
	}
	return infoString(xt, d["Title"]), infoString(xt, d["Author"])
}

func infoString(xt *pdfmodel.XRefTable, obj types.Object) string {
	if obj == nil {
		return ""
	}
	obj, err := xt.Dereference(obj)
	if err != nil || obj == nil {
		return ""
	}

	var s string
	switch v := obj.(type) {
	case types.StringLiteral:
		s, err = types.StringLiteralToString(v)
	case types.HexLiteral:
		s, err = types.HexLiteralToString(v)
	default:
		return ""
	}
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.ToValidUTF8(s, ""))
}
