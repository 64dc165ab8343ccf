package httputil

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

// MaxNameRunes caps display file names derived from titles.
const MaxNameRunes = 120

var (
	// idPattern matches artifact IDs and remote file codes.
	idPattern = regexp.MustCompile(`^[A-Za-z0-9_/-]{1,256}$`)

	numericPattern = regexp.MustCompile(`^[0-9]+$`)
)

// ValidateURL accepts only absolute HTTPS URLs with a host.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	switch {
	case u.Scheme != "https":
		return fmt.Errorf("only HTTPS URLs are allowed, got %q", u.Scheme)
	case u.Host == "":
		return fmt.Errorf("URL has no host")
	}
	return nil
}

// ValidateID checks an artifact ID or remote file code before it is used
// in a lookup, a URL or a path.
func ValidateID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("ID cannot be empty")
	case len(id) > 256:
		return fmt.Errorf("ID too long: %d characters", len(id))
	case !idPattern.MatchString(id):
		return fmt.Errorf("ID contains invalid characters: %q", id)
	case strings.Contains(id, ".."):
		return fmt.Errorf("ID contains path traversal: %q", id)
	}
	return nil
}

// ValidateNumericID checks a purely numeric identifier such as a Facebook
// photo id.
func ValidateNumericID(id string) error {
	if !numericPattern.MatchString(id) {
		return fmt.Errorf("expected numeric ID, got %q", id)
	}
	return nil
}

var nameReplacer = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
	"\"", "_", "<", "_", ">", "_", "|", "_",
)

// SanitizeFilename turns a media title into one safe file name of at most
// MaxNameRunes. Separators and reserved characters become underscores.
func SanitizeFilename(name string) string {
	name = nameReplacer.Replace(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.Join(strings.Fields(name), " ")
	if r := []rune(name); len(r) > MaxNameRunes {
		name = string(r[:MaxNameRunes])
	}
	// Leading dots hide files; trailing dots and spaces break Windows.
	name = strings.TrimLeft(name, ". ")
	name = strings.TrimRight(name, ". ")
	if name == "" {
		return "untitled"
	}
	return name
}

// SafeDownloadPath joins a generated file name onto dir and verifies the
// result stays inside it.
func SafeDownloadPath(dir, filename string) (string, error) {
	if filename != filepath.Base(filename) || filename == "." || filename == ".." {
		return "", fmt.Errorf("invalid file name %q", filename)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}
	full := filepath.Join(absDir, filename)
	if !WithinDir(absDir, full) {
		return "", fmt.Errorf("path traversal detected: %q escapes %q", full, absDir)
	}
	return full, nil
}

// WithinDir reports whether path resolves to a location strictly inside
// dir.
func WithinDir(dir, path string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
