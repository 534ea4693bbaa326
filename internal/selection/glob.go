package selection

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// Pattern is a compiled exclude glob.
//
// Globs follow find -path semantics: '*' and '?' cross directory separators,
// '[...]' and '[!...]' are character classes and '\' escapes the next character.
// A pattern without a '/' is also tried against the base name, so "secret.txt"
// excludes "docs/secret.txt".
type Pattern struct {
	raw      string
	re       *regexp.Regexp
	baseOnly bool
}

// Compile parses a glob into a Pattern. A leading "./" is ignored.
func Compile(glob string) (Pattern, error) {
	glob = strings.TrimPrefix(glob, "./")

	expr, err := translate(glob)
	if err != nil {
		return Pattern{}, fmt.Errorf("pattern %q: %w", glob, err)
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, fmt.Errorf("pattern %q: %w", glob, err)
	}

	return Pattern{raw: glob, re: re, baseOnly: !strings.Contains(glob, "/")}, nil
}

// String returns the glob as given.
func (p Pattern) String() string {
	return p.raw
}

// Match reports whether the slash-separated name matches.
func (p Pattern) Match(name string) bool {
	if p.re.MatchString(name) {
		return true
	}

	return p.baseOnly && p.re.MatchString(path.Base(name))
}

// Matcher is a set of patterns.
type Matcher []Pattern

// NewMatcher compiles every glob.
func NewMatcher(globs []string) (Matcher, error) {
	matcher := make(Matcher, 0, len(globs))

	for _, glob := range globs {
		pattern, err := Compile(glob)
		if err != nil {
			return nil, err
		}

		matcher = append(matcher, pattern)
	}

	return matcher, nil
}

// Match returns the first pattern matching name.
func (m Matcher) Match(name string) (Pattern, bool) {
	for _, pattern := range m {
		if pattern.Match(name) {
			return pattern, true
		}
	}

	return Pattern{}, false
}

func translate(glob string) (string, error) {
	var out strings.Builder

	out.WriteByte('^')

	for rest := glob; rest != ""; {
		switch c := rest[0]; c {
		case '*':
			out.WriteString(".*")
			rest = strings.TrimLeft(rest, "*")
		case '?':
			out.WriteByte('.')
			rest = rest[1:]
		case '\\':
			if len(rest) == 1 {
				return "", fmt.Errorf("dangling escape")
			}

			out.WriteString(regexp.QuoteMeta(rest[1:2]))
			rest = rest[2:]
		case '[':
			class, n, err := charClass(rest)
			if err != nil {
				return "", err
			}

			out.WriteString(class)
			rest = rest[n:]
		default:
			out.WriteString(regexp.QuoteMeta(rest[:1]))
			rest = rest[1:]
		}
	}

	out.WriteByte('$')

	return out.String(), nil
}

// charClass converts the bracket expression at the start of s and returns its length in s.
// A ']' right after '[' or '[!' is literal.
func charClass(s string) (string, int, error) {
	i := 1
	negate := false

	if i < len(s) && s[i] == '!' {
		negate = true
		i++
	}

	start := i

	if i < len(s) && s[i] == ']' {
		i++
	}

	end := strings.IndexByte(s[i:], ']')
	if end < 0 {
		return "", 0, fmt.Errorf("unclosed character class")
	}

	end += i
	body := strings.ReplaceAll(s[start:end], `\`, `\\`)

	body = strings.ReplaceAll(body, "[", `\[`)
	if strings.HasPrefix(body, "]") {
		body = `\` + body
	}

	if negate {
		return "[^" + body + "]", end + 1, nil
	}

	return "[" + body + "]", end + 1, nil
}
