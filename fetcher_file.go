package ppool

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// FileFetcher reads candidates from a local file, one `host:port[:protocol]`
// entry per line. A trivial, synchronous local-file reader with the same
// "skip the bad line, keep going" parse-error discipline as the rest of
// this package.
type FileFetcher struct {
	name    string
	path    string
	enabled bool
}

var _ Fetcher = (*FileFetcher)(nil)

// NewFileFetcher constructs a file-backed fetcher reading path.
func NewFileFetcher(name, path string, enabled bool) *FileFetcher {
	return &FileFetcher{name: name, path: path, enabled: enabled}
}

func (f *FileFetcher) Name() string   { return f.name }
func (f *FileFetcher) Enabled() bool  { return f.enabled }

func (f *FileFetcher) Fetch(ctx context.Context, limit int) ([]*Record, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("file fetcher %q: %w", f.name, err)
	}
	defer file.Close()

	log := logger("fetcher", f.name)
	var out []*Record
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if limit > 0 && len(out) >= limit {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rec, err := parseHostPortProtoLine(line, f.name)
		if err != nil {
			log.Debug("skipping unparseable line", "line", line, "error", err)
			continue
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("file fetcher %q: %w", f.name, err)
	}
	return out, nil
}

// parseHostPortProtoLine parses "host:port" or "host:port:protocol",
// defaulting to HTTP when no protocol is given. Shared by the
// file-backed and SCM-mirror fetchers, which both consume plain-text
// host:port lines.
func parseHostPortProtoLine(line, source string) (*Record, error) {
	parts := strings.Split(line, ":")
	if len(parts) < 2 {
		return nil, fmt.Errorf("expected host:port[:protocol], got %q", line)
	}
	host := parts[0]
	port, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid port in %q: %w", line, err)
	}
	proto := ProtocolHTTP
	if len(parts) >= 3 {
		p, ok := ParseProtocol(parts[2])
		if !ok {
			return nil, fmt.Errorf("unknown protocol %q in %q", parts[2], line)
		}
		proto = p
	}
	id := Identity{Host: host, Port: port, Protocol: proto}
	if !id.Valid() {
		return nil, fmt.Errorf("invalid identity parsed from %q", line)
	}
	return NewRecord(id, source), nil
}
