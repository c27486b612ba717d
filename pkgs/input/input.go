// Package input provides the physical-line iterators the parsing
// engine consumes. Lines are yielded with their terminators intact so
// chomping stays meaningful downstream.
package input

import (
	"bufio"
	"bytes"
	"io"
	"os"

	"github.com/h2non/filetype"

	"github.com/textparser-go/textparser/pkgs/errors"
)

// sniffLen is how much of a file's head is inspected for binary
// signatures; matches the filetype library's requirement.
const sniffLen = 262

// Iterator yields physical lines from a reader or an opened file.
// File-backed iterators own their handle; reader-backed ones never
// close the reader.
type Iterator struct {
	r      *bufio.Reader
	closer io.Closer
	owned  bool
	done   bool
}

// FromReader wraps a caller-owned reader. Close is a no-op.
func FromReader(r io.Reader) *Iterator {
	return &Iterator{r: bufio.NewReader(r)}
}

// Open opens path, verifies it is plain text and returns an iterator
// that owns the handle.
func Open(path string) (*Iterator, error) {
	if err := Verify(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewFileError(errors.ErrFileUnreadable, path, err)
	}
	return &Iterator{r: bufio.NewReader(f), closer: f, owned: true}, nil
}

// Next returns the next physical line including its terminator. It
// returns io.EOF once the input is exhausted.
func (it *Iterator) Next() (string, error) {
	if it.done {
		return "", io.EOF
	}
	line, err := it.r.ReadString('\n')
	if err == io.EOF {
		it.done = true
		if line != "" {
			return line, nil
		}
		return "", io.EOF
	}
	if err != nil {
		return "", err
	}
	return line, nil
}

// Owned reports whether the iterator owns its underlying handle
func (it *Iterator) Owned() bool { return it.owned }

// Close releases the handle of a file-backed iterator
func (it *Iterator) Close() error {
	if it.closer == nil {
		return nil
	}
	c := it.closer
	it.closer = nil
	return c.Close()
}

// Verify checks that path names a readable plain-text file. A head
// matching a known binary signature, or containing NUL bytes, fails
// with the not-plain-text error.
func Verify(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.NewFileError(errors.ErrFileNotFound, path, err)
	}
	if info.IsDir() {
		return errors.NewFileError(errors.ErrFileUnreadable, path,
			errors.New(errors.ErrFileUnreadable, "is a directory"))
	}

	f, err := os.Open(path)
	if err != nil {
		return errors.NewFileError(errors.ErrFileUnreadable, path, err)
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := f.Read(head)
	if err != nil && err != io.EOF {
		return errors.NewFileError(errors.ErrFileUnreadable, path, err)
	}
	head = head[:n]

	if kind, _ := filetype.Match(head); kind != filetype.Unknown {
		return errors.Newf(errors.ErrNotPlainText, "%q is %s, not plain text", path, kind.MIME.Value).
			WithContext("filename", path).
			WithContext("mime", kind.MIME.Value)
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return errors.Newf(errors.ErrNotPlainText, "%q contains binary data", path).
			WithContext("filename", path)
	}
	return nil
}
