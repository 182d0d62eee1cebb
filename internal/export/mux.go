// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bufio"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
)

// =============================================================================
// CONVERSATION MULTIPLEXER
// =============================================================================

// OrphanedName is the base name of the file holding records without a chat.
const OrphanedName = "orphaned"

// writeBufferSize is the buffer held per open output file.
const writeBufferSize = 32 * 1024

// ChatRef optionally identifies a canonical conversation.
type ChatRef struct {
	id    int64
	valid bool
}

// Chat references the canonical conversation id.
func Chat(id int64) ChatRef {
	return ChatRef{id: id, valid: true}
}

// Orphan is the reference for records that belong to no conversation.
var Orphan = ChatRef{}

// ID returns the canonical id and whether the reference is set.
func (c ChatRef) ID() (int64, bool) {
	return c.id, c.valid
}

// Namer returns the base file name (without extension) of a canonical
// conversation. Distinct ids must yield distinct names.
type Namer func(canonical int64) string

// CreateError reports an output file that could not be created.
type CreateError struct {
	Path string
	Err  error
}

func (e *CreateError) Error() string {
	return fmt.Sprintf("create %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *CreateError) Unwrap() error {
	return e.Err
}

type outputFile struct {
	path    string
	f       *os.File
	w       *bufio.Writer
	records int
}

func openOutput(path string) (*outputFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, &CreateError{Path: path, Err: err}
	}
	return &outputFile{path: path, f: f, w: bufio.NewWriterSize(f, writeBufferSize)}, nil
}

func (o *outputFile) close() error {
	flushErr := o.w.Flush()
	closeErr := o.f.Close()
	if flushErr != nil {
		return fmt.Errorf("flush %s: %w", o.path, flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", o.path, closeErr)
	}
	return nil
}

// Mux routes encoded records into one append-mode file per canonical
// conversation plus a shared orphaned file. Files are opened on first use
// and stay open until Close. Mux is not safe for concurrent use.
type Mux struct {
	dir   string
	ext   string
	namer Namer

	files   map[int64]*outputFile
	orphan  *outputFile
	written int64
	closed  bool
}

// NewMux creates dir if needed and opens the orphaned file eagerly.
func NewMux(dir, ext string, namer Namer) (*Mux, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &CreateError{Path: dir, Err: err}
	}
	orphan, err := openOutput(filepath.Join(dir, OrphanedName+ext))
	if err != nil {
		return nil, err
	}
	return &Mux{
		dir:    dir,
		ext:    ext,
		namer:  namer,
		files:  make(map[int64]*outputFile),
		orphan: orphan,
	}, nil
}

// Route appends record to the file of chat, creating it on first use.
// Records for one conversation appear in the order they were routed.
func (m *Mux) Route(chat ChatRef, record []byte) error {
	if m.closed {
		return errors.New("mux is closed")
	}
	out, err := m.fileFor(chat)
	if err != nil {
		return err
	}
	n, err := out.w.Write(record)
	m.written += int64(n)
	if err != nil {
		return fmt.Errorf("write %s: %w", out.path, err)
	}
	out.records++
	return nil
}

func (m *Mux) fileFor(chat ChatRef) (*outputFile, error) {
	id, ok := chat.ID()
	if !ok {
		return m.orphan, nil
	}
	if out, ok := m.files[id]; ok {
		return out, nil
	}
	out, err := openOutput(filepath.Join(m.dir, m.namer(id)+m.ext))
	if err != nil {
		return nil, err
	}
	m.files[id] = out
	return out, nil
}

// Close flushes and closes every file. All files are attempted; the
// failures are joined.
func (m *Mux) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	for _, id := range slices.Sorted(maps.Keys(m.files)) {
		if err := m.files[id].close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.orphan.close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// OpenFiles returns how many output files were opened, including the
// orphaned file.
func (m *Mux) OpenFiles() int {
	return len(m.files) + 1
}

// Conversations returns how many per-conversation files were opened.
func (m *Mux) Conversations() int {
	return len(m.files)
}

// Orphans returns how many records went to the orphaned file.
func (m *Mux) Orphans() int {
	return m.orphan.records
}

// BytesWritten returns the total size of all routed records.
func (m *Mux) BytesWritten() int64 {
	return m.written
}

// Paths returns the output file paths, orphaned file last.
func (m *Mux) Paths() []string {
	paths := make([]string, 0, len(m.files)+1)
	for _, id := range slices.Sorted(maps.Keys(m.files)) {
		paths = append(paths, m.files[id].path)
	}
	return append(paths, m.orphan.path)
}
