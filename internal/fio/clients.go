package fio

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ReadClients reads a client host list, one per line. Blank lines and lines
// starting with '#' are ignored. An empty path means local mode.
func ReadClients(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open client file %s: %w", path, err)
	}
	defer f.Close()

	var clients []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		clients = append(clients, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read client file %s: %w", path, err)
	}
	return clients, nil
}
