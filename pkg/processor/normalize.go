package processor

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/xhad/annotscan/internal/models"
)

// Normalize lowercases s and strips every space character (U+0020). Other
// whitespace is kept.
func Normalize(s string) string {
	// A Caser keeps state and must not be shared between goroutines.
	lower := cases.Lower(language.Und).String(s)
	return strings.ReplaceAll(lower, " ", "")
}

// FolderName is the output subfolder for term: the raw term without spaces,
// case preserved.
func FolderName(term string) string {
	return strings.ReplaceAll(term, " ", "")
}

// ErrInvalidTerm is returned for terms that cannot name an output folder.
var ErrInvalidTerm = errors.New("invalid search term")

// ValidateTerm rejects terms whose output folder would not be a single
// directory below the output base.
func ValidateTerm(raw string) error {
	switch folder := FolderName(raw); {
	case folder == "":
		return fmt.Errorf("%w: it has no non-space characters", ErrInvalidTerm)
	case folder == "." || folder == "..":
		return fmt.Errorf("%w: %q is not a folder name", ErrInvalidTerm, folder)
	case strings.ContainsAny(folder, "/\\\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidTerm, folder)
	}
	return nil
}

func NewSearchTerm(raw string) models.SearchTerm {
	return models.SearchTerm{
		Raw:        raw,
		Normalized: Normalize(raw),
		Folder:     FolderName(raw),
	}
}

// Matches reports whether the normalized term occurs in the normalized
// content.
func Matches(term models.SearchTerm, content string) bool {
	return strings.Contains(Normalize(content), term.Normalized)
}
