package topic

import (
	"fmt"
	"strconv"
	"strings"
)

// ApplyTemplate substitutes '{n}' (1-indexed '+' captures) and '{*}'
// (the '#' tail) in template, producing a concrete outbound topic.
//
// An out-of-range '{n}' is a configuration error: it is caught by
// ValidateTemplate at mapping-load time, not here, so a template that
// reaches ApplyTemplate is assumed already validated against the same
// capture count.
func ApplyTemplate(template string, m Match) (string, error) {
	var b strings.Builder
	i := 0
	for i < len(template) {
		c := template[i]
		if c != '{' {
			b.WriteByte(c)
			i++
			continue
		}

		end := strings.IndexByte(template[i:], '}')
		if end == -1 {
			return "", fmt.Errorf("topic: unterminated placeholder in template %q", template)
		}
		end += i

		placeholder := template[i+1 : end]
		if placeholder == "*" {
			b.WriteString(m.Tail)
		} else {
			n, err := strconv.Atoi(placeholder)
			if err != nil || n < 1 {
				return "", fmt.Errorf("topic: invalid placeholder {%s} in template %q", placeholder, template)
			}
			if n > len(m.Captures) {
				return "", fmt.Errorf("topic: placeholder {%d} out of range (%d captures) in template %q", n, len(m.Captures), template)
			}
			b.WriteString(m.Captures[n-1])
		}

		i = end + 1
	}

	return b.String(), nil
}

// MaxPlaceholderIndex scans template and returns the highest {n}
// referenced (0 if only {*} or no placeholders appear), plus whether
// {*} appears. Used at mapping-load time to validate a template against
// a pattern's actual capture count without needing a concrete topic.
func MaxPlaceholderIndex(template string) (maxIndex int, hasTail bool, err error) {
	i := 0
	for i < len(template) {
		if template[i] != '{' {
			i++
			continue
		}
		end := strings.IndexByte(template[i:], '}')
		if end == -1 {
			return 0, false, fmt.Errorf("topic: unterminated placeholder in template %q", template)
		}
		end += i
		placeholder := template[i+1 : end]
		if placeholder == "*" {
			hasTail = true
		} else {
			n, convErr := strconv.Atoi(placeholder)
			if convErr != nil || n < 1 {
				return 0, false, fmt.Errorf("topic: invalid placeholder {%s} in template %q", placeholder, template)
			}
			if n > maxIndex {
				maxIndex = n
			}
		}
		i = end + 1
	}
	return maxIndex, hasTail, nil
}

// ValidateTemplate checks that template's placeholders are satisfiable
// by a pattern with the given number of '+' captures and whether it has
// a '#' tail. Returns a bridgeerr.ConfigInvalid-wrapped error (via the
// caller) when a placeholder is out of range.
func ValidateTemplate(template string, captureCount int, patternHasTail bool) error {
	maxIndex, hasTail, err := MaxPlaceholderIndex(template)
	if err != nil {
		return err
	}
	if maxIndex > captureCount {
		return fmt.Errorf("topic: template %q references {%d} but pattern has only %d '+' captures", template, maxIndex, captureCount)
	}
	if hasTail && !patternHasTail {
		return fmt.Errorf("topic: template %q references {*} but pattern has no '#'", template)
	}
	return nil
}
