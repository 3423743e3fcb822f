package ingest

import (
	"fmt"
	"io"

	"github.com/sells-group/paper-cli/internal/model"
)

// Line renders one outcome as a single human-readable line.
func Line(o model.BatchItemOutcome) string {
	name := o.Reference.Raw
	switch o.Status {
	case model.StatusSuccess:
		op := "stored"
		if o.Page != nil && o.Page.Operation == model.OpUpdated {
			op = "updated"
		}
		s := fmt.Sprintf("OK    %s: %s %q", name, op, o.Title)
		if o.Page != nil {
			s += " " + o.Page.URL
		}
		if o.Partial {
			s += " (partial, needs review)"
		}
		return s
	case model.StatusSkipped:
		return fmt.Sprintf("SKIP  %s: %s", name, o.Error)
	default:
		return fmt.Sprintf("FAIL  %s: %s", name, o.Error)
	}
}

// WriteSummary prints the tally and lists partial records for review.
func WriteSummary(w io.Writer, outcomes []model.BatchItemOutcome) model.Summary {
	s := model.Tally(outcomes)
	fmt.Fprintf(w, "\n%d processed: %d succeeded, %d skipped, %d failed\n", s.Total, s.Success, s.Skipped, s.Failed)
	if s.Partial > 0 {
		fmt.Fprintf(w, "%d partial record(s) need review:\n", s.Partial)
		for _, o := range outcomes {
			if o.Partial {
				fmt.Fprintf(w, "  - %s", o.Title)
				if o.Page != nil {
					fmt.Fprintf(w, " %s", o.Page.URL)
				}
				fmt.Fprintln(w)
			}
		}
	}
	return s
}
