package serving

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// LoadClassLabels reads a newline delimited label file. Line order is the
// index mapping, trailing whitespace of every line is dropped.
func LoadClassLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open class labels %s: %w", path, err)
	}
	defer f.Close()

	labels := make([]string, 0, 1024)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		labels = append(labels, strings.TrimRightFunc(scanner.Text(), unicode.IsSpace))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read class labels %s: %w", path, err)
	}
	return labels, nil
}
