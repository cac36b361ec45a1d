package savefile

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"github.com/myrjola/novella/internal/errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// GlobalSaveName stores the reached records and global flags.
	GlobalSaveName = "global.nsav"
	// BackupSuffix marks the previous good copy while a file is being written.
	BackupSuffix = ".old"

	bookmarkPrefix = "sav"
	fileSuffix     = ".nsav"
)

var ErrNotFound = errors.NewSentinel("save file not found")

// BookmarkName returns the file name of the bookmark in slot saveID.
func BookmarkName(saveID int) string {
	return fmt.Sprintf("%s%03d%s", bookmarkPrefix, saveID, fileSuffix)
}

// ParseBookmarkName is the inverse of BookmarkName.
func ParseBookmarkName(name string) (int, bool) {
	if !strings.HasPrefix(name, bookmarkPrefix) || !strings.HasSuffix(name, fileSuffix) {
		return 0, false
	}
	var saveID int
	digits := strings.TrimSuffix(strings.TrimPrefix(name, bookmarkPrefix), fileSuffix)
	if _, err := fmt.Sscanf(digits, "%d", &saveID); err != nil || BookmarkName(saveID) != name {
		return 0, false
	}
	return saveID, true
}

// FileInfo describes a stored save file.
type FileInfo struct {
	Name    string
	ModTime time.Time
}

// Storage persists named save files.
//
// Write must leave the previous content recoverable until the new content has been written completely, and Read must
// fall back to that previous content when the current one cannot be decoded.
type Storage interface {
	// Read passes the content of name to decode. ErrNotFound is returned when nothing is stored under name.
	Read(ctx context.Context, name string, decode func(r io.Reader) error) error
	// Write replaces the content of name with what encode writes.
	Write(ctx context.Context, name string, encode func(w io.Writer) error) error
	// Delete removes name. Deleting a missing name is not an error.
	Delete(ctx context.Context, name string) error
	// List returns every stored name sorted by name.
	List(ctx context.Context) ([]FileInfo, error)
}

// FileStorage stores save files in a directory. Writes move the current file to a ".old" sibling first.
type FileStorage struct {
	logger *slog.Logger
	dir    string
}

// NewFileStorage creates dir if needed.
func NewFileStorage(logger *slog.Logger, dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create save directory", slog.String("dir", dir))
	}
	return &FileStorage{
		logger: logger.With("source", "FileStorage"),
		dir:    dir,
	}, nil
}

// Dir is the directory holding the save files.
func (s *FileStorage) Dir() string {
	return s.dir
}

func (s *FileStorage) path(name string) string {
	return filepath.Join(s.dir, name)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Read decodes name. When that fails and a backup exists, the backup is decoded instead and copied over the
// primary file.
func (s *FileStorage) Read(ctx context.Context, name string, decode func(r io.Reader) error) error {
	primary := s.path(name)
	backup := primary + BackupSuffix

	primaryErr := decodeFile(primary, decode)
	if primaryErr == nil {
		return nil
	}
	if !exists(backup) {
		if errors.Is(primaryErr, fs.ErrNotExist) {
			return errors.Wrap(ErrNotFound, "read save file", slog.String("name", name))
		}
		return errors.Wrap(primaryErr, "read save file", slog.String("name", name))
	}

	s.logger.LogAttrs(ctx, slog.LevelWarn, "save file unreadable, recovering from backup",
		slog.String("name", name), errors.SlogError(primaryErr))
	data, err := os.ReadFile(backup)
	if err != nil {
		return errors.Wrap(errors.Join(primaryErr, err), "read save backup", slog.String("name", name))
	}
	if err = decode(bytes.NewReader(data)); err != nil {
		return errors.Wrap(errors.Join(primaryErr, err), "decode save backup", slog.String("name", name))
	}
	if err = writeFile(primary, data); err != nil {
		return errors.Wrap(err, "restore save file from backup", slog.String("name", name))
	}
	if err = os.Remove(backup); err != nil {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "failed to remove save backup",
			slog.String("name", name), errors.SlogError(err))
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "save file recovered from backup", slog.String("name", name))
	return nil
}

func decodeFile(path string, decode func(r io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err //nolint:wrapcheck // wrapped by caller
	}
	defer f.Close()
	return decode(bufio.NewReader(f))
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644) //nolint:gosec // save files are not secret
}

// Write moves the current file to its backup, writes the new content and removes the backup once the new content
// is on disk.
func (s *FileStorage) Write(ctx context.Context, name string, encode func(w io.Writer) error) error {
	primary := s.path(name)
	backup := primary + BackupSuffix

	if exists(primary) {
		if err := os.Rename(primary, backup); err != nil {
			return errors.Wrap(err, "back up save file", slog.String("name", name))
		}
	}

	if err := s.writeNew(primary, encode); err != nil {
		return errors.Wrap(err, "write save file", slog.String("name", name))
	}

	if err := os.Remove(backup); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "failed to remove save backup",
			slog.String("name", name), errors.SlogError(err))
	}
	return nil
}

func (s *FileStorage) writeNew(path string, encode func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create file")
	}
	w := bufio.NewWriter(f)
	if err = encode(w); err != nil {
		_ = f.Close()
		return err
	}
	if err = w.Flush(); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "flush file")
	}
	if err = f.Sync(); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "sync file")
	}
	if err = f.Close(); err != nil {
		return errors.Wrap(err, "close file")
	}
	return nil
}

// Delete removes name and its backup.
func (s *FileStorage) Delete(_ context.Context, name string) error {
	primary := s.path(name)
	for _, path := range []string{primary, primary + BackupSuffix} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return errors.Wrap(err, "delete save file", slog.String("name", name))
		}
	}
	return nil
}

// List returns the save files in the directory. A file that only exists as a backup is listed under its primary
// name because Read can recover it.
func (s *FileStorage) List(_ context.Context) ([]FileInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrap(err, "list save directory", slog.String("dir", s.dir))
	}
	infos := make(map[string]FileInfo)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		isBackup := strings.HasSuffix(name, BackupSuffix)
		name = strings.TrimSuffix(name, BackupSuffix)
		if !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		if _, ok := infos[name]; ok && isBackup {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		infos[name] = FileInfo{Name: name, ModTime: fi.ModTime()}
	}

	result := make([]FileInfo, 0, len(infos))
	for _, info := range infos {
		result = append(result, info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}
