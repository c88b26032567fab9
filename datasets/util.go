package datasets

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// maxLineSize bounds a single record line. Long utterances carry a few
// thousand frames, each printed as a float.
const maxLineSize = 64 << 20

// forEachLine calls fn for every line of r with its 1-based line number.
// Every line is a record; there is no header and blank lines are not skipped.
func forEachLine(r io.Reader, fn func(lineNo int, line string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if err := fn(lineNo, line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read line %d: %w", lineNo+1, err)
	}
	return nil
}

// withFile opens path and passes it to fn.
func withFile(path string, fn func(r io.Reader) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()
	return fn(file)
}
