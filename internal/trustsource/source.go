// Package trustsource reads trust list lines from disk and from DSC list
// endpoints.
package trustsource

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// MaxBodySize bounds the size of a fetched DSC list.
const MaxBodySize = 32 << 20

var httpClient = &http.Client{Timeout: 15 * time.Second}

// rawDataPattern matches entries when the body is not valid JSON.
var rawDataPattern = regexp.MustCompile(`"rawData"\s*:\s*"([^"]*)"`)

// ReadFile returns the lines of the trust list file at path.
func ReadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening trust list: %w", err)
	}
	defer f.Close()

	return readLines(f)
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading trust list: %w", err)
	}
	return lines, nil
}

// ParseDSCList extracts every certificate from a DSC list response. The
// body may start with a signature line before the JSON document.
func ParseDSCList(body []byte) []string {
	doc := body
	if i := bytes.IndexByte(doc, '{'); i >= 0 {
		doc = doc[i:]
	}

	if gjson.ValidBytes(doc) {
		var certs []string
		gjson.GetBytes(doc, "certificates.#.rawData").ForEach(func(_, v gjson.Result) bool {
			if raw := strings.TrimSpace(v.String()); raw != "" {
				certs = append(certs, raw)
			}
			return true
		})
		return certs
	}

	var certs []string
	for _, m := range rawDataPattern.FindAllSubmatch(body, -1) {
		if raw := strings.TrimSpace(string(m[1])); raw != "" {
			certs = append(certs, raw)
		}
	}
	return certs
}

// Fetch downloads the DSC list at url and returns its certificates.
func Fetch(ctx context.Context, url string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: HTTP %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}

	certs := ParseDSCList(body)
	if len(certs) == 0 {
		return nil, fmt.Errorf("fetching %s: no certificates in response", url)
	}
	return certs, nil
}

// WriteLines replaces the file at path with one line per entry.
func WriteLines(path string, lines []string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".trustlist-*")
	if err != nil {
		return fmt.Errorf("creating trust list: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, line := range lines {
		w.WriteString(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("writing trust list: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing trust list: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing trust list: %w", err)
	}
	return nil
}
