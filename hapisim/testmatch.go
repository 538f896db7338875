package hapisim

import (
	"regexp"
	"strings"
)

// namePattern selects tests by their path: suite name, test name, then the names of
// nested subtests. Each /-separated part of the pattern applies to one level of the
// path and matches case-insensitively. An empty part accepts any name.
type namePattern struct {
	levels []*regexp.Regexp
	source string
}

func compileNamePattern(p string) (namePattern, error) {
	np := namePattern{source: p}
	for _, part := range splitPattern(p) {
		if part == "" {
			np.levels = append(np.levels, nil)
			continue
		}
		re, err := regexp.Compile("(?i:" + part + ")")
		if err != nil {
			return namePattern{}, err
		}
		np.levels = append(np.levels, re)
	}
	return np, nil
}

// match reports whether path is selected. Levels beyond the pattern are accepted,
// so a pattern naming only a suite runs all of its tests.
func (np *namePattern) match(path ...string) bool {
	for i, name := range path {
		if i >= len(np.levels) {
			break
		}
		if re := np.levels[i]; re != nil && !re.MatchString(name) {
			return false
		}
	}
	return true
}

// level returns the expression of level i, or "" when it accepts anything.
func (np *namePattern) level(i int) string {
	if i >= len(np.levels) || np.levels[i] == nil {
		return ""
	}
	return np.levels[i].String()
}

// splitPattern cuts p at each slash outside of character classes and groups.
func splitPattern(p string) []string {
	var (
		parts   []string
		start   int
		groups  int
		inClass bool
	)
	for i := 0; i < len(p); i++ {
		switch c := p[i]; {
		case c == '\\':
			i++
		case inClass:
			inClass = c != ']'
		case c == '[':
			inClass = true
		case c == '(':
			groups++
		case c == ')':
			if groups > 0 {
				groups--
			}
		case c == '/' && groups == 0:
			parts = append(parts, p[start:i])
			start = i + 1
		}
	}
	return append(parts, p[start:])
}

// testPath joins the path of a test for reports.
func testPath(names []string) string {
	return strings.Join(names, "/")
}
