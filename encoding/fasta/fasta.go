// Package fasta contains code for reading and writing FASTA files as
// exchanged with the external clustering engine. Records keep their order
// of appearance; labels may carry UPARSE-style abundance annotations of
// the form "name;size=123;".
package fasta

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Record is a single FASTA record. Label is the header line without the
// leading ">".
type Record struct {
	Label string
	Seq   string
}

// ReadAll parses all records from r, preserving their order.
func ReadAll(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	var (
		records []Record
		label   string
		started bool
		seq     strings.Builder
	)
	flush := func() error {
		if !started {
			return nil
		}
		if label == "" {
			return errors.New("malformed FASTA: empty header")
		}
		records = append(records, Record{Label: label, Seq: seq.String()})
		seq.Reset()
		return nil
	}
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			if err := flush(); err != nil {
				return nil, err
			}
			label = strings.TrimSpace(line[1:])
			started = true
			continue
		}
		if !started {
			return nil, errors.New("malformed FASTA: sequence before first header")
		}
		seq.WriteString(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading FASTA")
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return records, nil
}

// Writer writes FASTA records, one sequence line per record. The external
// clustering engine accepts unwrapped sequences, and unwrapped output
// keeps the files greppable.
type Writer struct {
	w   io.Writer
	err error
}

// NewWriter constructs a Writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write writes one record. An error is returned if the write failed.
func (w *Writer) Write(r *Record) error {
	if w.err != nil {
		return w.err
	}
	_, w.err = fmt.Fprintf(w.w, ">%s\n%s\n", r.Label, r.Seq)
	return w.err
}

// SizeLabel formats a label with a UPARSE abundance annotation, e.g.
// SizeLabel("Uniq1", 17) == "Uniq1;size=17;".
func SizeLabel(name string, size int) string {
	return fmt.Sprintf("%s;size=%d;", name, size)
}

// ParseSizeLabel splits a label into its name and abundance annotation.
// Labels without an annotation are returned with size 1, matching the
// engine's -sizein default for unannotated input.
func ParseSizeLabel(label string) (name string, size int, err error) {
	name = label
	size = 1
	for _, field := range strings.Split(label, ";") {
		if strings.HasPrefix(field, "size=") {
			size, err = strconv.Atoi(strings.TrimPrefix(field, "size="))
			if err != nil || size < 1 {
				return "", 0, errors.Errorf("malformed size annotation in label %q", label)
			}
		}
	}
	if i := strings.IndexByte(label, ';'); i >= 0 {
		name = label[:i]
	}
	return name, size, nil
}
