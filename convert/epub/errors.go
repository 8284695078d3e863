package epub

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

var (
	// ErrResourceNotFound marks a referenced asset missing from the book
	// folder. Recorded, export continues.
	ErrResourceNotFound = errors.New("resource not found")
	// ErrUnsupportedAssetType is returned when file extension has no known
	// media type. Fatal.
	ErrUnsupportedAssetType = errors.New("unsupported asset type")
	// ErrIO is returned for staging and archive write failures. Fatal.
	ErrIO = errors.New("i/o failure")
)

// AssetError describes problem with a single referenced file.
type AssetError struct {
	Path  string
	Page  int // 0 when problem is not related to a particular page
	Kind  error
	Cause error
}

func (e *AssetError) Error() string {
	var s string
	if e.Page > 0 {
		s = fmt.Sprintf("page %d: %s: %v", e.Page, e.Path, e.Kind)
	} else {
		s = fmt.Sprintf("%s: %v", e.Path, e.Kind)
	}
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

func (e *AssetError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func notFound(path string, page int, cause error) error {
	return &AssetError{Path: path, Page: page, Kind: ErrResourceNotFound, Cause: cause}
}

func ioError(path string, cause error) error {
	return &AssetError{Path: path, Kind: ErrIO, Cause: cause}
}

// Report accumulates non-fatal problems of a single export.
type Report struct {
	err error
}

func (r *Report) Add(err error) {
	if r == nil || err == nil {
		return
	}
	multierr.AppendInto(&r.err, err)
}

// Err returns all recorded problems combined or nil.
func (r *Report) Err() error {
	if r == nil {
		return nil
	}
	return r.err
}

func (r *Report) Problems() []error {
	if r == nil {
		return nil
	}
	return multierr.Errors(r.err)
}

// Warnings returns user facing text of every recorded problem.
func (r *Report) Warnings() []string {
	problems := r.Problems()
	if len(problems) == 0 {
		return nil
	}
	res := make([]string, 0, len(problems))
	for _, p := range problems {
		res = append(res, p.Error())
	}
	return res
}
