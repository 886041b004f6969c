package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shpitdev/community-landscape/internal/pipeline"
	"gopkg.in/yaml.v3"
)

const (
	followingSuffix = "--following.csv"
	communitySuffix = "--community_info.csv"
	metaSuffix      = "--meta.yaml"
)

// DefaultDir is where artifacts live when no directory is configured.
const DefaultDir = "data"

// CSVDir stores each artifact as two CSV files plus a small YAML metadata file:
//
//	<dir>/<username>--following.csv
//	<dir>/<username>--community_info.csv
//	<dir>/<username>--meta.yaml
type CSVDir struct {
	dir string
}

type csvMeta struct {
	Username  string    `yaml:"username"`
	UserID    string    `yaml:"user_id"`
	CreatedAt time.Time `yaml:"created_at"`
	Following int       `yaml:"following"`
	Rows      int       `yaml:"rows"`
}

func NewCSVDir(dir string) (*CSVDir, error) {
	if strings.TrimSpace(dir) == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &CSVDir{dir: dir}, nil
}

func (s *CSVDir) path(username, suffix string) string {
	return filepath.Join(s.dir, username+suffix)
}

func (s *CSVDir) Load(_ context.Context, username string) (Artifact, error) {
	u, err := NormalizeUsername(username)
	if err != nil {
		return Artifact{}, err
	}

	a := Artifact{Username: u}
	err = readFile(s.path(u, followingSuffix), func(r io.Reader) error {
		var err error
		a.Following, err = pipeline.ReadAccountsCSV(r)
		return err
	})
	if err != nil {
		return Artifact{}, err
	}
	err = readFile(s.path(u, communitySuffix), func(r io.Reader) error {
		var err error
		a.Rows, err = pipeline.ReadCSV(r)
		return err
	})
	if err != nil {
		return Artifact{}, err
	}

	// Metadata is optional so artifacts written by other tools still load.
	b, err := os.ReadFile(s.path(u, metaSuffix))
	switch {
	case err == nil:
		var m csvMeta
		if err := yaml.Unmarshal(b, &m); err != nil {
			return Artifact{}, fmt.Errorf("parse %s: %w", s.path(u, metaSuffix), err)
		}
		a.UserID = m.UserID
		a.CreatedAt = m.CreatedAt
	case !errors.Is(err, fs.ErrNotExist):
		return Artifact{}, err
	}
	return a, nil
}

func (s *CSVDir) Save(_ context.Context, a Artifact) error {
	u, err := NormalizeUsername(a.Username)
	if err != nil {
		return err
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	// Rows go last: Load treats the community file as the completion marker.
	if err := writeFileAtomic(s.path(u, followingSuffix), func(w io.Writer) error {
		return pipeline.WriteAccountsCSV(w, a.Following)
	}); err != nil {
		return err
	}
	if err := writeFileAtomic(s.path(u, metaSuffix), func(w io.Writer) error {
		enc := yaml.NewEncoder(w)
		if err := enc.Encode(csvMeta{
			Username:  u,
			UserID:    a.UserID,
			CreatedAt: a.CreatedAt.UTC(),
			Following: len(a.Following),
			Rows:      len(a.Rows),
		}); err != nil {
			return err
		}
		return enc.Close()
	}); err != nil {
		return err
	}
	return writeFileAtomic(s.path(u, communitySuffix), func(w io.Writer) error {
		return pipeline.WriteCSV(w, a.Rows)
	})
}

func (s *CSVDir) Delete(_ context.Context, username string) error {
	u, err := NormalizeUsername(username)
	if err != nil {
		return err
	}
	for _, suffix := range []string{communitySuffix, followingSuffix, metaSuffix} {
		if err := os.Remove(s.path(u, suffix)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// List returns usernames with a complete artifact, sorted.
func (s *CSVDir) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, communitySuffix) {
			continue
		}
		u := strings.TrimSuffix(name, communitySuffix)
		if _, err := os.Stat(s.path(u, followingSuffix)); err != nil {
			continue
		}
		out = append(out, u)
	}
	sort.Strings(out)
	return out, nil
}

func (s *CSVDir) Close() error { return nil }

func readFile(path string, fn func(io.Reader) error) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	if err := fn(f); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

func writeFileAtomic(path string, fn func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	if err := fn(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
