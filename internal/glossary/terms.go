package glossary

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

type term interface {
	apply(input string) (output string, changed bool)
}

func compile(entry Entry) (term, error) {
	from := strings.TrimSpace(entry.From)
	pattern := strings.TrimSpace(entry.Pattern)

	switch {
	case from != "" && pattern != "":
		return nil, errors.New("set either from or pattern, not both")
	case from != "":
		return compileLiteral(from, entry.To)
	case pattern != "":
		return compilePattern(pattern, entry.To, entry.Flags)
	default:
		return nil, errors.New("from or pattern is required")
	}
}

// literalTerm matches whole words case-insensitively.
type literalTerm struct {
	re          *regexp.Regexp
	replacement string
}

func compileLiteral(from, to string) (term, error) {
	re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(from) + `\b`)
	if err != nil {
		return nil, fmt.Errorf("invalid term %q: %w", from, err)
	}
	return literalTerm{re: re, replacement: to}, nil
}

func (t literalTerm) apply(input string) (string, bool) {
	output := t.re.ReplaceAllLiteralString(input, t.replacement)
	return output, output != input
}

type patternTerm struct {
	re          *regexp.Regexp
	replacement string
	global      bool
}

func compilePattern(pattern, to, flags string) (term, error) {
	ignoreCase, global, multiLine, dotAll := false, false, false, false
	for _, flag := range flags {
		switch flag {
		case 'i':
			ignoreCase = true
		case 'g':
			global = true
		case 'm':
			multiLine = true
		case 's':
			dotAll = true
		case ' ':
			continue
		default:
			return nil, fmt.Errorf("unsupported flag %q", flag)
		}
	}

	prefix := ""
	if ignoreCase {
		prefix += "i"
	}
	if multiLine {
		prefix += "m"
	}
	if dotAll {
		prefix += "s"
	}
	if prefix != "" {
		pattern = "(?" + prefix + ")" + pattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	return patternTerm{re: re, replacement: to, global: global}, nil
}

func (t patternTerm) apply(input string) (string, bool) {
	if t.global {
		output := t.re.ReplaceAllString(input, t.replacement)
		return output, output != input
	}

	match := t.re.FindStringSubmatchIndex(input)
	if match == nil {
		return input, false
	}

	expanded := t.re.ExpandString(nil, t.replacement, input, match)
	output := input[:match[0]] + string(expanded) + input[match[1]:]
	return output, output != input
}
