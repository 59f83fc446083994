// Package fastq contains code for reading and writing FASTQ amplicon
// reads.
package fastq

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrShort is returned when a truncated FASTQ file is encountered.
	ErrShort = errors.New("short FASTQ file")
	// ErrInvalid is returned when an invalid FASTQ file is encountered.
	ErrInvalid = errors.New("invalid FASTQ file")
)

// A Read is a FASTQ read, comprising an ID (without the leading "@"), a
// base sequence and a Phred+33 quality string of the same length.
type Read struct {
	ID, Seq, Qual string
}

var errEOF = errors.New("eof")

// Scanner provides a convenient interface for reading FASTQ read data.
// The Scan method advances to the next read, returning a boolean
// indicating whether the scan succeeded. Scanners are not threadsafe.
//
// Scanner validates record framing (ID lines begin with "@", line 3
// begins with "+") and that sequence and quality strings have equal
// length; downstream stages depend on that invariant.
type Scanner struct {
	b     *bufio.Scanner
	err   error
	nRead int
}

// NewScanner constructs a new Scanner that reads raw FASTQ data from the
// provided reader.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{b: bufio.NewScanner(r)}
}

// Scan the next read into the provided read. Scan returns a boolean
// indicating whether the scan succeeded. Once Scan returns false, it
// never returns true again. Upon completion, the user should check the
// Err method to determine whether scanning stopped because of an error or
// because the end of the stream was reached.
func (f *Scanner) Scan(read *Read) bool {
	if f.err != nil {
		return false
	}
	if !f.b.Scan() {
		if f.err = f.b.Err(); f.err == nil {
			f.err = errEOF
		}
		return false
	}
	id := f.b.Bytes()
	if len(id) < 2 || id[0] != '@' {
		f.err = fmt.Errorf("%w: record %d: malformed ID line", ErrInvalid, f.nRead+1)
		return false
	}
	read.ID = string(id[1:])
	if !f.scan() {
		return false
	}
	read.Seq = f.b.Text()
	if !f.scan() {
		return false
	}
	if plus := f.b.Bytes(); len(plus) == 0 || plus[0] != '+' {
		f.err = fmt.Errorf("%w: record %d: missing \"+\" line", ErrInvalid, f.nRead+1)
		return false
	}
	if !f.scan() {
		return false
	}
	read.Qual = f.b.Text()
	if len(read.Qual) != len(read.Seq) {
		f.err = fmt.Errorf("%w: record %d (%s): sequence and quality lengths differ (%d != %d)",
			ErrInvalid, f.nRead+1, read.ID, len(read.Seq), len(read.Qual))
		return false
	}
	f.nRead++
	return true
}

func (f *Scanner) scan() bool {
	ok := f.b.Scan()
	if !ok {
		if f.err = f.b.Err(); f.err == nil {
			f.err = ErrShort
		}
	}
	return ok
}

// N returns the number of complete records scanned so far.
func (f *Scanner) N() int { return f.nRead }

// Err returns the scanning error, if any.
func (f *Scanner) Err() error {
	if f.err == errEOF {
		return nil
	}
	return f.err
}
