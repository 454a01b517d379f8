// Package ignore reads gitignore-style files that exclude paths from a
// template bundle.
package ignore

import (
	"bufio"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// BundleFile is the ignore file read from a bundle directory. It is never
// part of the bundle itself.
const BundleFile = ".launchpadignore"

// Parser reads and parses gitignore-style files.
type Parser struct {
	// IgnoreFiles is the list of ignore file names to look for.
	IgnoreFiles []string

	// FallbackPatterns are returned when no ignore files are found.
	FallbackPatterns []string
}

// NewParser creates a new ignore file parser with the given configuration.
func NewParser(ignoreFiles, fallbackPatterns []string) *Parser {
	return &Parser{
		IgnoreFiles:      ignoreFiles,
		FallbackPatterns: fallbackPatterns,
	}
}

// ParseDir reads all ignore files from root and returns the combined
// patterns. If no ignore files are found, returns fallback patterns.
func (p *Parser) ParseDir(root string) ([]string, error) {
	var patterns []string
	foundAny := false

	for _, ignoreFile := range p.IgnoreFiles {
		filePatterns, err := p.parseFile(filepath.Join(root, ignoreFile))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		patterns = append(patterns, filePatterns...)
		foundAny = true
	}

	if !foundAny {
		return p.FallbackPatterns, nil
	}
	return deduplicate(patterns), nil
}

// Load parses the ignore files under root into a Matcher.
func (p *Parser) Load(root string) (*Matcher, error) {
	patterns, err := p.ParseDir(root)
	if err != nil {
		return nil, err
	}
	return NewMatcher(patterns), nil
}

// parseFile reads a single gitignore-style file and returns patterns.
func (p *Parser) parseFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var patterns []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if pattern := parseLine(scanner.Text()); pattern != "" {
			patterns = append(patterns, pattern)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return patterns, nil
}

// parseLine parses a single line from a gitignore file.
// Returns empty string for comments and blank lines. Negations keep their
// leading "!".
func parseLine(line string) string {
	line = strings.TrimRight(line, " \t")
	if line == "" || strings.HasPrefix(line, "#") {
		return ""
	}
	if strings.HasPrefix(line, "!") {
		if rest := strings.TrimPrefix(line, "!"); rest != "" {
			return "!" + toGlobPattern(rest)
		}
		return ""
	}
	return toGlobPattern(line)
}

// toGlobPattern converts a gitignore pattern to a glob pattern where "**"
// spans any number of path segments.
func toGlobPattern(pattern string) string {
	// A leading slash anchors the pattern at the root.
	anchored := strings.HasPrefix(pattern, "/")
	pattern = strings.TrimPrefix(pattern, "/")

	// Directory patterns cover everything below them.
	if strings.HasSuffix(pattern, "/") {
		return pattern + "**"
	}
	if anchored && !strings.Contains(pattern, "/") {
		pattern = "/" + pattern
	}

	// Unanchored names match at any depth.
	if !anchored && !strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "*") {
		pattern = "**/" + pattern
	}

	// Extension-less names are treated as directories.
	if !strings.HasSuffix(pattern, "/**") && !strings.HasSuffix(pattern, "/*") && !strings.Contains(pattern, ".") {
		pattern += "/**"
	}
	return pattern
}

// deduplicate removes duplicate patterns while preserving order.
func deduplicate(patterns []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if !seen[p] {
			seen[p] = true
			result = append(result, p)
		}
	}
	return result
}

// Matcher decides whether a slash-separated relative path is ignored. The
// last matching pattern wins, so a later negation re-includes a path.
type Matcher struct {
	rules []rule
}

type rule struct {
	segments []string
	negate   bool
	basename bool
}

// NewMatcher compiles glob patterns as returned by Parser.ParseDir.
func NewMatcher(patterns []string) *Matcher {
	m := &Matcher{}
	for _, p := range patterns {
		r := rule{}
		if strings.HasPrefix(p, "!") {
			r.negate = true
			p = p[1:]
		}
		r.basename = !strings.Contains(p, "/")
		p = strings.TrimPrefix(p, "/")
		r.segments = strings.Split(p, "/")
		m.rules = append(m.rules, r)
	}
	return m
}

// Match reports whether rel is ignored. A nil Matcher ignores nothing.
func (m *Matcher) Match(rel string) bool {
	if m == nil || len(m.rules) == 0 {
		return false
	}
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	segs := strings.Split(rel, "/")

	ignored := false
	for _, r := range m.rules {
		var ok bool
		if r.basename {
			ok, _ = path.Match(r.segments[0], segs[len(segs)-1])
		} else {
			ok = matchSegments(r.segments, segs)
		}
		if ok {
			ignored = !r.negate
		}
	}
	return ignored
}

// matchSegments matches glob segments against path segments. "**" matches
// zero or more segments.
func matchSegments(pat, segs []string) bool {
	for len(pat) > 0 {
		if pat[0] == "**" {
			rest := pat[1:]
			for i := 0; i <= len(segs); i++ {
				if matchSegments(rest, segs[i:]) {
					return true
				}
			}
			return false
		}
		if len(segs) == 0 {
			return false
		}
		if ok, _ := path.Match(pat[0], segs[0]); !ok {
			return false
		}
		pat, segs = pat[1:], segs[1:]
	}
	return len(segs) == 0
}
