package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// ErrListFileMissing means the default list file does not exist. Callers
// fall back to their defaults.
var ErrListFileMissing = errors.New("list file not found")

// LoadCategories reads seed URLs from path, one per line. Lines that do
// not start with "http" are joined to baseURL. When the file is missing
// and was not named explicitly, the default wine category is returned
// together with ErrListFileMissing.
func LoadCategories(path, baseURL string, explicit bool) ([]string, error) {
	if path == "" {
		path = DefaultCategoriesFile
	}
	base := strings.TrimRight(baseURL, "/")

	lines, err := readList(path, explicit)
	if errors.Is(err, ErrListFileMissing) {
		return []string{base + "/catalog/vino"}, err
	}
	if err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(line, "http") {
			urls = append(urls, line)
			continue
		}
		urls = append(urls, base+"/"+strings.TrimLeft(line, "/"))
	}
	return urls, nil
}

// LoadProxies reads proxy URLs from path. A missing default file yields no
// proxies. Entries without a scheme are taken as http proxies.
func LoadProxies(path string, explicit bool) ([]string, error) {
	if path == "" {
		path = DefaultProxiesFile
	}

	lines, err := readList(path, explicit)
	if errors.Is(err, ErrListFileMissing) {
		return []string{}, err
	}
	if err != nil {
		return nil, err
	}

	proxies := make([]string, 0, len(lines))
	for _, line := range lines {
		if !strings.Contains(line, "://") {
			line = "http://" + line
		}
		proxies = append(proxies, line)
	}
	return proxies, nil
}

func readList(path string, explicit bool) ([]string, error) {
	fh, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil, fmt.Errorf("%w: %s", ErrListFileMissing, path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer fh.Close()

	return parseList(fh)
}

// parseList skips blank lines and "#" comments.
func parseList(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read list: %w", err)
	}
	return lines, nil
}
