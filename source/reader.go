package source

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

const maxLineSize = 16 << 20

// lineReader yields the non-blank lines of a JSONL file, transparently gunzipping
// files that end in ".gz".
type lineReader struct {
	path string
	f    *os.File
	gz   *gzip.Reader
	sc   *bufio.Scanner
	line int
}

func openLines(path string) (*lineReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := &lineReader{path: path, f: f}
	var body io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("gzip %s: %w", path, err)
		}
		r.gz = gz
		body = gz
	}
	r.sc = bufio.NewScanner(body)
	r.sc.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	return r, nil
}

// next returns the next non-blank line (valid until the following call) or io.EOF.
func (r *lineReader) next() ([]byte, error) {
	for r.sc.Scan() {
		r.line++
		line := bytes.TrimSpace(r.sc.Bytes())
		if len(line) > 0 {
			return line, nil
		}
	}
	if err := r.sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", r.path, err)
	}
	return nil, io.EOF
}

func (r *lineReader) Close() error {
	var errs []error
	if r.gz != nil {
		errs = append(errs, r.gz.Close())
		r.gz = nil
	}
	if r.f != nil {
		errs = append(errs, r.f.Close())
		r.f = nil
	}
	return errors.Join(errs...)
}

// countLines returns the number of non-blank lines in a JSONL file.
func countLines(path string) (int, error) {
	r, err := openLines(path)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	n := 0
	for {
		_, err := r.next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return 0, err
		}
		n++
	}
}

func countAll(paths []string) (int, error) {
	total := 0
	for _, p := range paths {
		n, err := countLines(p)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
