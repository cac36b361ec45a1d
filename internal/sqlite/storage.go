package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"github.com/myrjola/novella/internal/errors"
	"github.com/myrjola/novella/internal/savefile"
	"io"
	"log/slog"
	"time"
)

var _ savefile.Storage = (*Storage)(nil)

// Storage keeps every save file in a row. The previous content of a row is kept in the previous column and
// restored when the current content cannot be decoded.
type Storage struct {
	db     *Database
	logger *slog.Logger
}

// NewStorage creates a save file storage backed by db.
func NewStorage(db *Database, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger.With("source", "SQLiteStorage"),
	}
}

type saveFileRow struct {
	Name       string `db:"name"`
	Data       []byte `db:"data"`
	Previous   []byte `db:"previous"`
	ModifiedAt string `db:"modified_at"`
}

func (s *Storage) Read(ctx context.Context, name string, decode func(r io.Reader) error) error {
	var row saveFileRow
	err := s.db.ReadOnly.GetContext(ctx, &row,
		`SELECT name, data, previous, modified_at FROM save_files WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrap(savefile.ErrNotFound, "read save file", slog.String("name", name))
	}
	if err != nil {
		return errors.Wrap(err, "select save file", slog.String("name", name))
	}

	var dataErr error
	if row.Data != nil {
		if dataErr = decode(bytes.NewReader(row.Data)); dataErr == nil {
			return nil
		}
	} else {
		dataErr = errors.New("save file has no data", slog.String("name", name))
	}
	if row.Previous == nil {
		return errors.Wrap(dataErr, "read save file", slog.String("name", name))
	}

	s.logger.LogAttrs(ctx, slog.LevelWarn, "save file unreadable, recovering from previous content",
		slog.String("name", name), errors.SlogError(dataErr))
	if err = decode(bytes.NewReader(row.Previous)); err != nil {
		return errors.Wrap(errors.Join(dataErr, err), "decode previous save file", slog.String("name", name))
	}
	if _, err = s.db.ReadWrite.ExecContext(ctx,
		`UPDATE save_files SET data = previous, modified_at = ? WHERE name = ?`,
		formatTime(time.Now()), name); err != nil {
		return errors.Wrap(err, "restore save file from previous content", slog.String("name", name))
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "save file recovered from previous content", slog.String("name", name))
	return nil
}

func (s *Storage) Write(ctx context.Context, name string, encode func(w io.Writer) error) error {
	var buf bytes.Buffer
	if err := encode(&buf); err != nil {
		return errors.Wrap(err, "encode save file", slog.String("name", name))
	}
	if _, err := s.db.ReadWrite.ExecContext(ctx, `
INSERT INTO save_files (name, data, previous, modified_at)
VALUES (?, ?, NULL, ?)
ON CONFLICT (name) DO UPDATE SET previous    = save_files.data,
                                 data        = excluded.data,
                                 modified_at = excluded.modified_at`,
		name, buf.Bytes(), formatTime(time.Now())); err != nil {
		return errors.Wrap(err, "upsert save file", slog.String("name", name))
	}
	return nil
}

func (s *Storage) Delete(ctx context.Context, name string) error {
	if _, err := s.db.ReadWrite.ExecContext(ctx, `DELETE FROM save_files WHERE name = ?`, name); err != nil {
		return errors.Wrap(err, "delete save file", slog.String("name", name))
	}
	return nil
}

func (s *Storage) List(ctx context.Context) ([]savefile.FileInfo, error) {
	var rows []saveFileRow
	if err := s.db.ReadOnly.SelectContext(ctx, &rows,
		`SELECT name, modified_at FROM save_files ORDER BY name`); err != nil {
		return nil, errors.Wrap(err, "list save files")
	}
	infos := make([]savefile.FileInfo, 0, len(rows))
	for _, row := range rows {
		modTime, err := time.Parse(time.RFC3339Nano, row.ModifiedAt)
		if err != nil {
			return nil, errors.Wrap(err, "parse modification time", slog.String("name", row.Name))
		}
		infos = append(infos, savefile.FileInfo{Name: row.Name, ModTime: modTime})
	}
	return infos, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
