package sanitize

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// Validation errors for security checks.
var (
	// ErrPathTraversal indicates a path contains directory traversal sequences.
	ErrPathTraversal = errors.New("path contains directory traversal")

	// ErrAbsolutePath indicates an absolute path was provided where relative was expected.
	ErrAbsolutePath = errors.New("absolute path not allowed")

	// ErrEmptyPath indicates an empty path was provided.
	ErrEmptyPath = errors.New("path cannot be empty")

	// ErrInvalidBranch indicates a branch name the host would reject.
	ErrInvalidBranch = errors.New("invalid branch name")
)

// branchPattern is a conservative subset of git's check-ref-format rules.
var branchPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]{0,199}$`)

// BundlePath validates a slash-separated path of a file inside an artifact
// bundle and returns its cleaned form. Absolute paths and paths that escape
// the bundle root are rejected.
func BundlePath(p string) (string, error) {
	if p == "" {
		return "", ErrEmptyPath
	}
	if strings.Contains(p, "\\") {
		p = strings.ReplaceAll(p, "\\", "/")
	}
	if path.IsAbs(p) || filepath.IsAbs(p) {
		return "", fmt.Errorf("%w: %s", ErrAbsolutePath, p)
	}
	clean := path.Clean(p)
	if clean == "." {
		return "", ErrEmptyPath
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, p)
	}
	return clean, nil
}

// WithinRoot joins a validated bundle path onto root and checks the result
// stays inside root.
func WithinRoot(root, p string) (string, error) {
	clean, err := BundlePath(p)
	if err != nil {
		return "", err
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve root: %w", err)
	}
	full := filepath.Join(absRoot, filepath.FromSlash(clean))
	rel, err := filepath.Rel(absRoot, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path escapes root", ErrPathTraversal)
	}
	return full, nil
}

// ValidateBranch checks a branch name against the subset of ref rules hosts
// share.
func ValidateBranch(name string) error {
	if !branchPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidBranch, name)
	}
	if strings.Contains(name, "..") || strings.Contains(name, "//") ||
		strings.HasSuffix(name, "/") || strings.HasSuffix(name, ".lock") {
		return fmt.Errorf("%w: %q", ErrInvalidBranch, name)
	}
	return nil
}
