package relay

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jimsnab/go-lane"
)

// A line starting with this character is a directive; any other line is
// payload.
const DirectivePrefix = '#'

type (
	// Directive is an administrative command parsed from a console line.
	Directive struct {
		Name   string
		Arg    string
		HasArg bool
	}

	directiveFn[T any] func(target T, d Directive)

	// vocabulary binds the directive names legal for one role to their
	// handlers.
	vocabulary[T any] map[string]directiveFn[T]
)

// Classifies a line. ok is false for payload.
//
// The name runs from after the prefix to the first whitespace; the argument
// is everything after that whitespace character, unmodified.
func parseDirective(line string) (d Directive, ok bool) {
	if len(line) == 0 || line[0] != DirectivePrefix {
		return
	}
	ok = true

	rest := line[1:]
	idx := strings.IndexFunc(rest, unicode.IsSpace)
	if idx < 0 {
		d.Name = rest
		return
	}

	_, size := utf8.DecodeRuneInString(rest[idx:])
	d.Name = rest[:idx]
	d.Arg = rest[idx+size:]
	d.HasArg = true
	return
}

func (d Directive) String() string {
	if !d.HasArg {
		return string(DirectivePrefix) + d.Name
	}
	return fmt.Sprintf("%c%s %s", DirectivePrefix, d.Name, d.Arg)
}

// Runs the handler bound to d.Name. An unknown name is reported on the
// display and nothing else happens.
func (v vocabulary[T]) dispatch(l lane.Lane, display Display, target T, d Directive) bool {
	fn, found := v[d.Name]
	if !found {
		l.Debugf("unknown directive %s; known: %s", d, strings.Join(v.names(), " "))
		display.Display(fmt.Sprintf("Command %s not found", d.Name))
		return false
	}

	l.Tracef("directive: %s", d)
	fn(target, d)
	return true
}

func (v vocabulary[T]) names() []string {
	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Parses a port argument, reporting a bad or missing value on the display.
func directivePort(display Display, d Directive) (port int, valid bool) {
	port, err := parsePort(d.Arg)
	if err != nil {
		display.Display(fmt.Sprintf("Invalid port: %s", strings.TrimSpace(d.Arg)))
		return
	}
	valid = true
	return
}
