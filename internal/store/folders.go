// ABOUTME: Sheet music folders: named, slugged and ordered groupings of library items
// ABOUTME: Folders with items cannot be deleted

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Folder groups sheet music items.
type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	SortOrder int       `json:"sortOrder"`
	ItemCount int       `json:"itemCount"`
	CreatedAt time.Time `json:"createdAt"`
}

// FolderUpdate holds optional folder changes.
type FolderUpdate struct {
	Name      *string
	Slug      *string
	SortOrder *int
}

// EnsureFolders inserts any of the given folders whose slug is not yet present.
// Existing folders are left untouched.
func (s *SQLiteStore) EnsureFolders(ctx context.Context, folders []Folder) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, f := range folders {
			if f.ID == "" {
				f.ID = NewID()
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO sheet_music_folders (id, name, slug, sort_order, created_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(slug) DO NOTHING
			`, f.ID, f.Name, f.Slug, f.SortOrder, formatTime(time.Now()))
			if err != nil {
				return fmt.Errorf("ensuring folder %s: %w", f.Slug, err)
			}
		}
		return nil
	})
}

// CreateFolder inserts a folder. Returns ErrConflict if the slug is taken.
func (s *SQLiteStore) CreateFolder(ctx context.Context, f *Folder) error {
	if f.ID == "" {
		f.ID = NewID()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sheet_music_folders (id, name, slug, sort_order, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, f.ID, f.Name, f.Slug, f.SortOrder, formatTime(f.CreatedAt))
	if isConstraintViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("inserting folder: %w", err)
	}
	return nil
}

const folderSelect = `
	SELECT f.id, f.name, f.slug, f.sort_order, f.created_at,
	       (SELECT COUNT(*) FROM sheet_music m WHERE m.folder_id = f.id)
	FROM sheet_music_folders f`

func scanFolder(row scanner) (*Folder, error) {
	var f Folder
	var createdAt string
	if err := row.Scan(&f.ID, &f.Name, &f.Slug, &f.SortOrder, &createdAt, &f.ItemCount); err != nil {
		return nil, err
	}
	var err error
	if f.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &f, nil
}

func (s *SQLiteStore) getFolderWhere(ctx context.Context, where string, arg any) (*Folder, error) {
	f, err := scanFolder(s.db.QueryRowContext(ctx, folderSelect+` WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying folder: %w", err)
	}
	return f, nil
}

// GetFolder retrieves a folder with its item count.
func (s *SQLiteStore) GetFolder(ctx context.Context, id string) (*Folder, error) {
	return s.getFolderWhere(ctx, `f.id = ?`, id)
}

// GetFolderBySlug retrieves a folder by its URL slug.
func (s *SQLiteStore) GetFolderBySlug(ctx context.Context, slug string) (*Folder, error) {
	return s.getFolderWhere(ctx, `f.slug = ?`, slug)
}

// ListFolders returns folders by sort order, then name.
func (s *SQLiteStore) ListFolders(ctx context.Context) ([]Folder, error) {
	rows, err := s.db.QueryContext(ctx, folderSelect+` ORDER BY f.sort_order, f.name, f.id`)
	if err != nil {
		return nil, fmt.Errorf("querying folders: %w", err)
	}
	defer rows.Close()

	folders := []Folder{}
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning folder: %w", err)
		}
		folders = append(folders, *f)
	}
	return folders, rows.Err()
}

// MaxFolderSortOrder returns the largest sort order in use, or -1 with no folders.
func (s *SQLiteStore) MaxFolderSortOrder(ctx context.Context) (int, error) {
	var maxOrder sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(sort_order) FROM sheet_music_folders`).Scan(&maxOrder); err != nil {
		return 0, fmt.Errorf("querying max sort order: %w", err)
	}
	if !maxOrder.Valid {
		return -1, nil
	}
	return int(maxOrder.Int64), nil
}

// UpdateFolder applies the non-nil fields of upd.
// Returns ErrConflict if the new slug is taken.
func (s *SQLiteStore) UpdateFolder(ctx context.Context, id string, upd FolderUpdate) error {
	set := ""
	var args []any
	add := func(col string, v any) {
		if set != "" {
			set += ", "
		}
		set += col + " = ?"
		args = append(args, v)
	}
	if upd.Name != nil {
		add("name", *upd.Name)
	}
	if upd.Slug != nil {
		add("slug", *upd.Slug)
	}
	if upd.SortOrder != nil {
		add("sort_order", *upd.SortOrder)
	}
	if set == "" {
		_, err := s.GetFolder(ctx, id)
		return err
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, `UPDATE sheet_music_folders SET `+set+` WHERE id = ?`, args...)
	if isConstraintViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("updating folder: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteFolder removes an empty folder.
// Returns ErrFolderNotEmpty if any item still references it.
func (s *SQLiteStore) DeleteFolder(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var items int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sheet_music WHERE folder_id = ?`, id).Scan(&items); err != nil {
			return fmt.Errorf("counting folder items: %w", err)
		}
		if items > 0 {
			return ErrFolderNotEmpty
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM sheet_music_folders WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("deleting folder: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}
