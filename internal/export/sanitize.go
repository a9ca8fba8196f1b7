package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"
)

var ErrInvalidOutputDir = errors.New("invalid output_dir")

// SanitizeName keeps letters, digits and a few separators so the result is
// safe as a file name or EDL title. Other runes become '_'.
func SanitizeName(s string, maxLen int) string {
	return clean(s, maxLen, func(r rune) rune {
		switch {
		case unicode.IsControl(r):
			return -1
		case unicode.IsLetter(r), unicode.IsDigit(r), strings.ContainsRune(" -_.,()", r):
			return r
		}
		return '_'
	})
}

// SanitizeComment keeps any printable text but folds it onto one line, so a
// reason from the model cannot start a new EDL statement.
func SanitizeComment(s string, maxLen int) string {
	folded := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return ' '
		case !unicode.IsPrint(r):
			return -1
		}
		return r
	}, s)
	return clean(strings.Join(strings.Fields(folded), " "), maxLen, func(r rune) rune { return r })
}

func clean(s string, maxLen int, mapping func(rune) rune) string {
	out := strings.TrimSpace(strings.Map(mapping, s))
	if runes := []rune(out); maxLen > 0 && len(runes) > maxLen {
		out = strings.TrimSpace(string(runes[:maxLen]))
	}
	return out
}

// ValidateOutputDir accepts an existing directory given as an absolute, clean
// path without parent references.
func ValidateOutputDir(dir string) error {
	invalid := func(reason string) error {
		return fmt.Errorf("%w: %s", ErrInvalidOutputDir, reason)
	}

	switch {
	case strings.TrimSpace(dir) == "":
		return invalid("empty path")
	case slices.Contains(strings.Split(filepath.ToSlash(dir), "/"), ".."):
		return invalid("parent references are not allowed")
	case !filepath.IsAbs(dir):
		return invalid("path is relative")
	case filepath.Clean(dir) != dir:
		return invalid("path is not in clean form")
	}

	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		return invalid(dir + " does not exist")
	case err != nil:
		return fmt.Errorf("%w: %w", ErrInvalidOutputDir, err)
	case !info.IsDir():
		return invalid(dir + " is a file")
	}
	return nil
}
