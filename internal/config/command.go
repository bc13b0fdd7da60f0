package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode"
)

// CommandConfig is an external command as written in the config file and
// split into argv. Arguments may carry {name} placeholders that the caller
// fills in right before exec.
type CommandConfig struct {
	Raw  string
	Argv []string
}

var placeholderPattern = regexp.MustCompile(`\{([a-z_]+)\}`)

// ParseCommand splits raw with shell-like quoting: single or double quotes
// group words and a backslash escapes the next rune. A leading # disables
// the command.
func ParseCommand(raw string) (CommandConfig, error) {
	argv, err := splitArgv(raw)
	if err != nil {
		return CommandConfig{}, err
	}
	return CommandConfig{Raw: strings.TrimSpace(raw), Argv: argv}, nil
}

// Empty reports whether there is nothing to run.
func (c CommandConfig) Empty() bool {
	return len(c.Argv) == 0
}

// Placeholders lists the distinct placeholder names used in argv, sorted.
func (c CommandConfig) Placeholders() []string {
	var names []string
	for _, arg := range c.Argv {
		for _, match := range placeholderPattern.FindAllStringSubmatch(arg, -1) {
			if !slices.Contains(names, match[1]) {
				names = append(names, match[1])
			}
		}
	}
	slices.Sort(names)
	return names
}

// checkPlaceholders rejects placeholders outside allowed.
func checkPlaceholders(key string, c CommandConfig, allowed ...string) error {
	for _, name := range c.Placeholders() {
		if !slices.Contains(allowed, name) {
			if len(allowed) == 0 {
				return fmt.Errorf("%s: placeholder {%s} is not supported", key, name)
			}
			return fmt.Errorf("%s: placeholder {%s} is not supported (use %s)", key, name, braceList(allowed))
		}
	}
	return nil
}

func braceList(names []string) string {
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = "{" + name + "}"
	}
	return strings.Join(out, ", ")
}

type argvLexer struct {
	argv    []string
	word    strings.Builder
	inWord  bool
	quote   rune
	quoteAt int
	escape  bool
}

func (l *argvLexer) flush() {
	if !l.inWord {
		return
	}
	l.argv = append(l.argv, l.word.String())
	l.word.Reset()
	l.inWord = false
}

func (l *argvLexer) add(r rune) {
	l.word.WriteRune(r)
	l.inWord = true
}

func splitArgv(input string) ([]string, error) {
	input = strings.TrimSpace(input)
	if input == "" || strings.HasPrefix(input, "#") {
		return nil, nil
	}

	var l argvLexer
	for i, r := range input {
		switch {
		case l.escape:
			l.add(r)
			l.escape = false
		case r == '\\' && l.quote != '\'':
			l.escape = true
		case l.quote != 0:
			if r == l.quote {
				l.quote = 0
				continue
			}
			l.add(r)
		case r == '\'' || r == '"':
			l.quote = r
			l.quoteAt = i
			l.inWord = true
		case unicode.IsSpace(r):
			l.flush()
		default:
			l.add(r)
		}
	}

	if l.escape {
		return nil, fmt.Errorf("unterminated escape sequence at end of command %q", input)
	}
	if l.quote != 0 {
		return nil, fmt.Errorf("unterminated quote opened at column %d in command %q", l.quoteAt+1, input)
	}
	l.flush()
	return l.argv, nil
}

func mustCommand(raw string) CommandConfig {
	cmd, err := ParseCommand(raw)
	if err != nil {
		panic(err)
	}
	return cmd
}
