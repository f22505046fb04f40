package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Spool keeps a JSON file per pending job so a crash between enqueue
// and write does not lose it. A nil *Spool spools nothing.
type Spool struct {
	dir string
}

// NewSpool creates the spool directory if needed
func NewSpool(dir string) (*Spool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	return &Spool{dir: dir}, nil
}

func (s *Spool) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Put writes j atomically
func (s *Spool) Put(j job) error {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".job-*")
	if err != nil {
		return fmt.Errorf("create spool file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write spool file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close spool file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(j.ID)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("commit spool file: %w", err)
	}
	return nil
}

// Remove deletes a finished job; a missing file is not an error
func (s *Spool) Remove(id string) error {
	if s == nil {
		return nil
	}
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Pending returns spooled jobs oldest first. Unreadable files are
// returned by name in bad so the caller can report them.
func (s *Spool) Pending() (jobs []job, bad []string, err error) {
	if s == nil {
		return nil, nil, nil
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read spool dir: %w", err)
	}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			bad = append(bad, name)
			continue
		}
		var j job
		if err := json.Unmarshal(data, &j); err != nil || j.ID == "" {
			bad = append(bad, name)
			continue
		}
		jobs = append(jobs, j)
	}

	sort.SliceStable(jobs, func(a, b int) bool {
		return jobs[a].CreatedAt.Before(jobs[b].CreatedAt)
	})
	return jobs, bad, nil
}
