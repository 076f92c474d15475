package report

import (
	"fmt"
	"strconv"
	"strings"
)

// Line prefixes.
const (
	LineDispatched = "dispatched"
	LineSynced     = "synced"
	LineSubmitted  = "submitted"
)

type field struct {
	key   string
	value string
	// quoted forces quoting even for plain values
	quoted bool
}

func formatFields(fs []field) string {
	var b strings.Builder
	for i, f := range fs {
		if i > 0 {
			b.WriteByte(' ')
		}
		v := f.value
		if f.quoted || needsQuoting(v) {
			v = strconv.Quote(v)
		}
		fmt.Fprintf(&b, "%s=%s", f.key, v)
	}
	return b.String()
}

func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if r <= ' ' || r == '"' || r == '=' || r == '\\' || r > '~' {
			return true
		}
	}
	return false
}
