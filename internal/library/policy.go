package library

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Policy decides what happens when a record already exists.
type Policy string

const (
	PolicySkip   Policy = "skip"
	PolicyUpdate Policy = "update"
	PolicyAsk    Policy = "ask"
)

// ParsePolicy parses a duplicate policy name. Empty means skip.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicySkip, nil
	case PolicySkip, PolicyUpdate, PolicyAsk:
		return p, nil
	default:
		return "", eris.Errorf("library: unknown duplicate policy %q (want skip, update or ask)", s)
	}
}
