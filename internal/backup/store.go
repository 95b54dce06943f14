package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// Extension is the suffix every backup file carries.
	Extension = ".db"

	isoLayout = "2006-01-02T15:04:05.000Z"
)

var isoDasher = strings.NewReplacer(":", "-", ".", "-")

// Record describes one backup file. Records are never mutated after they
// are produced.
type Record struct {
	Filename        string `json:"filename"`
	Path            string `json:"path"`
	CreatedAtMillis int64  `json:"created_at_millis"`
	SizeBytes       int64  `json:"size_bytes"`
}

// CreatedAt returns the creation instant in UTC.
func (r Record) CreatedAt() time.Time {
	return time.UnixMilli(r.CreatedAtMillis).UTC()
}

// Store names and enumerates backup files inside a single directory.
type Store struct {
	dir     string
	prefix  string
	current *regexp.Regexp
	legacy  *regexp.Regexp
	logger  *slog.Logger
}

// NewStore creates a Store rooted at dir. Backup names start with prefix.
func NewStore(dir, prefix string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	p := regexp.QuoteMeta(prefix)
	return &Store{
		dir:     dir,
		prefix:  prefix,
		current: regexp.MustCompile(`^` + p + `_(\d+)_[0-9T:.\-Z]+\.db$`),
		legacy:  regexp.MustCompile(`^` + p + `_(\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}(?:-\d{3})?Z)\.db$`),
		logger:  logger,
	}
}

// Dir returns the backup directory.
func (s *Store) Dir() string {
	return s.dir
}

// EnsureDirectory creates the backup directory if it does not exist.
func (s *Store) EnsureDirectory() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return ioError("mkdir", s.dir, err)
	}
	return nil
}

// NameFor returns the file name for a backup taken at nowMillis, e.g.
// crm_backup_1703500200000_2023-12-25T10-30-00-000Z.db.
func (s *Store) NameFor(nowMillis int64) string {
	iso := time.UnixMilli(nowMillis).UTC().Format(isoLayout)
	return fmt.Sprintf("%s_%d_%s%s", s.prefix, nowMillis, isoDasher.Replace(iso), Extension)
}

// ParseCreatedAt extracts the creation time encoded in a backup file name.
// Both the current epoch-millis encoding and the legacy ISO-only encoding
// are understood.
func (s *Store) ParseCreatedAt(name string) (int64, bool) {
	if m := s.current.FindStringSubmatch(name); m != nil {
		ms, err := strconv.ParseInt(m[1], 10, 64)
		if err == nil {
			return ms, true
		}
	}
	if m := s.legacy.FindStringSubmatch(name); m != nil {
		if t, err := time.Parse(time.RFC3339Nano, undashISO(m[1])); err == nil {
			return t.UnixMilli(), true
		}
	}
	return 0, false
}

// undashISO turns "2006-01-02T15-04-05-000Z" (or the form without
// milliseconds) back into an ISO-8601 instant.
func undashISO(v string) string {
	date, clock, ok := strings.Cut(v, "T")
	if !ok {
		return v
	}
	parts := strings.Split(strings.TrimSuffix(clock, "Z"), "-")
	iso := date + "T" + strings.Join(parts[:min(3, len(parts))], ":")
	if len(parts) > 3 {
		iso += "." + parts[3]
	}
	return iso + "Z"
}

// PathFor resolves a bare backup file name to its location. Anything that is
// not a plain ".db" file name is rejected.
func (s *Store) PathFor(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, Extension) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.dir, name), nil
}

// Contains reports whether path names a ".db" file directly inside the
// backup directory.
func (s *Store) Contains(path string) bool {
	clean := filepath.Clean(path)
	return filepath.Dir(clean) == filepath.Clean(s.dir) && strings.HasSuffix(clean, Extension)
}

// List scans the backup directory and returns every backup, newest first.
// A missing directory yields an empty list.
func (s *Store) List() ([]Record, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, ioError("read dir", s.dir, err)
	}

	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Extension) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}

		created, ok := s.ParseCreatedAt(e.Name())
		if !ok {
			created = info.ModTime().UnixMilli()
			s.logger.Warn("backup name not recognised, using modification time",
				"file", e.Name(), "mod_time", info.ModTime().UTC())
		}

		records = append(records, Record{
			Filename:        e.Name(),
			Path:            filepath.Join(s.dir, e.Name()),
			CreatedAtMillis: created,
			SizeBytes:       info.Size(),
		})
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAtMillis != records[j].CreatedAtMillis {
			return records[i].CreatedAtMillis > records[j].CreatedAtMillis
		}
		return records[i].Filename > records[j].Filename
	})
	return records, nil
}
