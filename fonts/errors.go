package fonts

import (
	"errors"
	"fmt"
)

var (
	// ErrFontParse marks font file which could not be read or understood.
	ErrFontParse = errors.New("unable to parse font")
	// ErrLicenseForbidsEmbedding marks font whose embedding rights do not
	// allow putting it into a book.
	ErrLicenseForbidsEmbedding = errors.New("license forbids embedding")
)

// FontError describes font file excluded from catalog.
type FontError struct {
	Path   string
	Family string
	// one of the sentinel errors above
	Kind  error
	Cause error
}

func (e *FontError) Error() string {
	var s string
	if e.Family != "" {
		s = fmt.Sprintf("font %q (%s): %v", e.Family, e.Path, e.Kind)
	} else {
		s = fmt.Sprintf("font file %s: %v", e.Path, e.Kind)
	}
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

func (e *FontError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func parseError(path string, cause error) *FontError {
	return &FontError{Path: path, Kind: ErrFontParse, Cause: cause}
}
