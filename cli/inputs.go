package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/flowseam/flowseam/recio"
	"github.com/flowseam/flowseam/recio/sfio"
)

// OpenFileReader opens one record file, with "-" meaning stdin.
func OpenFileReader(path string) (recio.ReadCloser, error) {
	if path == "-" {
		r, err := sfio.NewReader(io.NopCloser(os.Stdin))
		if err != nil {
			return nil, fmt.Errorf("stdin: %w", err)
		}
		return r, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := sfio.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// OpenFileReaders opens every path, closing any already open on
// failure.  No paths means stdin.
func OpenFileReaders(paths []string) ([]recio.ReadCloser, error) {
	if len(paths) == 0 {
		paths = []string{"-"}
	}
	readers := make([]recio.ReadCloser, 0, len(paths))
	for _, path := range paths {
		r, err := OpenFileReader(path)
		if err != nil {
			recio.CloseReaders(readers)
			return nil, err
		}
		readers = append(readers, r)
	}
	return readers, nil
}
