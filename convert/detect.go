package convert

import (
	"errors"
	"io"
	"os"

	"github.com/h2non/filetype"
)

// isArchiveFile reports whether file content is zip archive regardless of
// its extension (.zip, .bloompub and such).
func isArchiveFile(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, 262)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, err
	}
	return filetype.Is(head[:n], "zip"), nil
}
