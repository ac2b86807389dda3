package textfile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/kirillkom/receipt-splitter/internal/core/domain"
)

// Ledger is the plain-text processed-receipt list: one receipt id per line,
// append only.
type Ledger struct {
	path string

	mu  sync.RWMutex
	ids map[string]struct{}
}

// Open loads the ledger at path. A missing file is an empty ledger. When the
// file exists but cannot be read, an empty usable ledger is returned together
// with an ErrLedgerUnavailable error so callers can warn and continue.
func Open(path string) (*Ledger, error) {
	l := &Ledger{path: path, ids: make(map[string]struct{})}
	ids, err := readIDs(path)
	if err != nil {
		return l, domain.WrapError(domain.ErrLedgerUnavailable, "load ledger", err)
	}
	l.ids = ids
	return l, nil
}

func (l *Ledger) Path() string { return l.path }

func (l *Ledger) Contains(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.ids[id]
	return ok
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.ids)
}

// Record appends ids not yet on disk and returns how many were added. The
// file is re-read first so entries written by another process are kept.
func (l *Ledger) Record(ctx context.Context, ids []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	onDisk, err := readIDs(l.path)
	if err != nil {
		return 0, domain.WrapError(domain.ErrLedgerUnavailable, "reload ledger", err)
	}
	for id := range onDisk {
		l.ids[id] = struct{}{}
	}

	fresh := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := onDisk[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		fresh = append(fresh, id)
	}
	if len(fresh) == 0 {
		return 0, nil
	}
	sort.Strings(fresh)

	if err := appendLines(l.path, fresh); err != nil {
		return 0, domain.WrapError(domain.ErrLedgerUnavailable, "append ledger", err)
	}
	for _, id := range fresh {
		l.ids[id] = struct{}{}
	}
	return len(fresh), nil
}

func readIDs(path string) (map[string]struct{}, error) {
	ids := make(map[string]struct{})
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ids, nil
	}
	if err != nil {
		return ids, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if id := strings.TrimSpace(sc.Text()); id != "" {
			ids[id] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		return ids, fmt.Errorf("scan %s: %w", path, err)
	}
	return ids, nil
}

func appendLines(path string, ids []string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	// A file written by hand may lack the trailing newline.
	if info, err := f.Stat(); err == nil && info.Size() > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, info.Size()-1); err != nil && err != io.EOF {
			return err
		}
		if last[0] != '\n' {
			if _, err := f.WriteString("\n"); err != nil {
				return err
			}
		}
	}

	w := bufio.NewWriter(f)
	for _, id := range ids {
		if _, err := w.WriteString(id + "\n"); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Sync()
}
