package library

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/paper-cli/internal/model"
	"github.com/sells-group/paper-cli/internal/resilience"
	"github.com/sells-group/paper-cli/pkg/notion"
)

// retryable reports whether a raw Notion failure may succeed on retry:
// throttling, conflicts, server errors and transport failures.
func retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	status, _ := notion.APIStatus(err)
	switch {
	case status == 0:
		return !strings.Contains(err.Error(), "context canceled")
	case status == http.StatusConflict:
		return true
	default:
		return resilience.IsTransientHTTPStatus(status)
	}
}

// fieldsByLength lists property names longest first so "Key Findings" wins
// over a shorter name it contains.
var fieldsByLength = func() []string {
	names := make([]string, 0, len(schemaFields))
	for _, f := range schemaFields {
		names = append(names, f.Name)
	}
	sort.SliceStable(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	return names
}()

// mapError converts a Notion failure into the pipeline taxonomy.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := model.AsError(err); ok {
		return err
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return model.NewError(model.ErrStoreUnavailable, op+": circuit open", err)
	}

	status, msg := notion.APIStatus(err)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return model.NewError(model.ErrPermissionDenied, op+": credentials rejected", err)
	case status == http.StatusNotFound:
		return model.NewError(model.ErrPermissionDenied, op+": database not found or not shared with the integration", err)
	case status == http.StatusBadRequest:
		for _, name := range fieldsByLength {
			if strings.Contains(msg, name) {
				return &model.Error{Kind: model.ErrSchemaMismatch, Field: name, Msg: op + ": " + msg, Err: err}
			}
		}
		return model.NewError(model.ErrSchemaMismatch, op+": request rejected", err)
	case status == 0 && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		return eris.Wrap(err, op)
	default:
		return model.NewError(model.ErrStoreUnavailable, op, err)
	}
}
