// ABOUTME: Sheet music library items with per-part practice videos and NWC files
// ABOUTME: Items optionally belong to a folder; see folders.go

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// VoicePart names the part a practice video is for.
type VoicePart string

const (
	PartSoprano VoicePart = "soprano"
	PartAlto    VoicePart = "alto"
	PartTenor   VoicePart = "tenor"
	PartBass    VoicePart = "bass"
	PartFull    VoicePart = "full"
)

// VoiceParts lists parts in display order.
var VoiceParts = []VoicePart{PartSoprano, PartAlto, PartTenor, PartBass, PartFull}

// SheetMusic is a score in the library.
type SheetMusic struct {
	ID          string    `json:"id"`
	FolderID    string    `json:"folderId,omitempty"`
	Folder      *Folder   `json:"folder,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Composer    string    `json:"composer,omitempty"`
	Filepath    string    `json:"filepath"`
	Videos      []Video   `json:"videos"`
	NwcFiles    []NwcFile `json:"nwcFiles"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Video is a practice video link for one part.
type Video struct {
	ID           string    `json:"id"`
	SheetMusicID string    `json:"sheetMusicId"`
	Part         VoicePart `json:"part"`
	VideoURL     string    `json:"videoUrl"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NwcFile is a NoteWorthy Composer file attached to an item.
type NwcFile struct {
	ID           string    `json:"id"`
	SheetMusicID string    `json:"sheetMusicId"`
	Filepath     string    `json:"filepath"`
	CreatedAt    time.Time `json:"createdAt"`
}

// SheetMusicFilter narrows ListSheetMusic.
type SheetMusicFilter struct {
	FolderID string
}

// SheetMusicUpdate holds optional field changes. Nil fields are left alone;
// an empty FolderID moves the item out of any folder.
type SheetMusicUpdate struct {
	Title       *string
	Description *string
	Composer    *string
	FolderID    *string
}

// LibraryStore manages sheet music items and folders
type LibraryStore interface {
	CreateSheetMusic(ctx context.Context, m *SheetMusic) error
	GetSheetMusic(ctx context.Context, id string) (*SheetMusic, error)
	ListSheetMusic(ctx context.Context, filter SheetMusicFilter) ([]SheetMusic, error)
	UpdateSheetMusic(ctx context.Context, id string, upd SheetMusicUpdate) error
	DeleteSheetMusic(ctx context.Context, id string) error
	AddVideo(ctx context.Context, v *Video) error
	AddNwcFile(ctx context.Context, f *NwcFile) error

	EnsureFolders(ctx context.Context, folders []Folder) error
	CreateFolder(ctx context.Context, f *Folder) error
	GetFolder(ctx context.Context, id string) (*Folder, error)
	GetFolderBySlug(ctx context.Context, slug string) (*Folder, error)
	ListFolders(ctx context.Context) ([]Folder, error)
	MaxFolderSortOrder(ctx context.Context) (int, error)
	UpdateFolder(ctx context.Context, id string, upd FolderUpdate) error
	DeleteFolder(ctx context.Context, id string) error
}

var _ LibraryStore = (*SQLiteStore)(nil)

func insertVideo(ctx context.Context, ex interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, v *Video) error {
	if v.ID == "" {
		v.ID = NewID()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO sheet_music_videos (id, sheet_music_id, part, video_url, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, v.ID, v.SheetMusicID, string(v.Part), v.VideoURL, formatTime(v.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting video: %w", err)
	}
	return nil
}

// CreateSheetMusic inserts an item together with its videos.
func (s *SQLiteStore) CreateSheetMusic(ctx context.Context, m *SheetMusic) error {
	if m.ID == "" {
		m.ID = NewID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.UpdatedAt = m.CreatedAt

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sheet_music (id, folder_id, title, description, composer, filepath, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, m.ID, nullString(m.FolderID), m.Title, nullString(m.Description), nullString(m.Composer), m.Filepath,
			formatTime(m.CreatedAt), formatTime(m.UpdatedAt))
		if err != nil {
			if isConstraintViolation(err) {
				return ErrNotFound // unknown folder
			}
			return fmt.Errorf("inserting sheet music: %w", err)
		}
		for i := range m.Videos {
			m.Videos[i].SheetMusicID = m.ID
			if err := insertVideo(ctx, tx, &m.Videos[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

const sheetMusicSelect = `
	SELECT m.id, m.folder_id, m.title, m.description, m.composer, m.filepath, m.created_at, m.updated_at,
	       f.name, f.slug, f.sort_order
	FROM sheet_music m
	LEFT JOIN sheet_music_folders f ON f.id = m.folder_id`

func scanSheetMusic(row scanner) (*SheetMusic, error) {
	var m SheetMusic
	var folderID, desc, composer, fName, fSlug sql.NullString
	var fOrder sql.NullInt64
	var createdAt, updatedAt string
	if err := row.Scan(&m.ID, &folderID, &m.Title, &desc, &composer, &m.Filepath, &createdAt, &updatedAt,
		&fName, &fSlug, &fOrder); err != nil {
		return nil, err
	}
	m.FolderID = folderID.String
	m.Description = desc.String
	m.Composer = composer.String
	if folderID.Valid {
		m.Folder = &Folder{ID: folderID.String, Name: fName.String, Slug: fSlug.String, SortOrder: int(fOrder.Int64)}
	}
	m.Videos = []Video{}
	m.NwcFiles = []NwcFile{}

	var err error
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &m, nil
}

// GetSheetMusic retrieves an item with folder, videos and NWC files.
func (s *SQLiteStore) GetSheetMusic(ctx context.Context, id string) (*SheetMusic, error) {
	m, err := scanSheetMusic(s.db.QueryRowContext(ctx, sheetMusicSelect+` WHERE m.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying sheet music: %w", err)
	}
	items := []SheetMusic{*m}
	if err := s.loadSheetMusicChildren(ctx, items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

// ListSheetMusic returns items newest first.
func (s *SQLiteStore) ListSheetMusic(ctx context.Context, filter SheetMusicFilter) ([]SheetMusic, error) {
	query := sheetMusicSelect
	var args []any
	if filter.FolderID != "" {
		query += ` WHERE m.folder_id = ?`
		args = append(args, filter.FolderID)
	}
	query += ` ORDER BY m.created_at DESC, m.id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sheet music: %w", err)
	}
	defer rows.Close()

	items := []SheetMusic{}
	for rows.Next() {
		m, err := scanSheetMusic(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning sheet music: %w", err)
		}
		items = append(items, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sheet music: %w", err)
	}
	rows.Close()

	if err := s.loadSheetMusicChildren(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *SQLiteStore) loadSheetMusicChildren(ctx context.Context, items []SheetMusic) error {
	if len(items) == 0 {
		return nil
	}
	index := make(map[string]int, len(items))
	args := make([]any, len(items))
	for i := range items {
		index[items[i].ID] = i
		args[i] = items[i].ID
	}
	in := placeholders(len(items))

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sheet_music_id, part, video_url, created_at FROM sheet_music_videos
		WHERE sheet_music_id IN (`+in+`) ORDER BY created_at, id`, args...)
	if err != nil {
		return fmt.Errorf("querying videos: %w", err)
	}
	for rows.Next() {
		var v Video
		var part, createdAt string
		if err := rows.Scan(&v.ID, &v.SheetMusicID, &part, &v.VideoURL, &createdAt); err != nil {
			rows.Close()
			return fmt.Errorf("scanning video: %w", err)
		}
		v.Part = VoicePart(part)
		v.CreatedAt, _ = parseTime(createdAt)
		i := index[v.SheetMusicID]
		items[i].Videos = append(items[i].Videos, v)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterating videos: %w", err)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `
		SELECT id, sheet_music_id, filepath, created_at FROM sheet_music_nwc_files
		WHERE sheet_music_id IN (`+in+`) ORDER BY created_at, id`, args...)
	if err != nil {
		return fmt.Errorf("querying nwc files: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var f NwcFile
		var createdAt string
		if err := rows.Scan(&f.ID, &f.SheetMusicID, &f.Filepath, &createdAt); err != nil {
			return fmt.Errorf("scanning nwc file: %w", err)
		}
		f.CreatedAt, _ = parseTime(createdAt)
		i := index[f.SheetMusicID]
		items[i].NwcFiles = append(items[i].NwcFiles, f)
	}
	return rows.Err()
}

// UpdateSheetMusic applies the non-nil fields of upd.
func (s *SQLiteStore) UpdateSheetMusic(ctx context.Context, id string, upd SheetMusicUpdate) error {
	set := "updated_at = ?"
	args := []any{formatTime(time.Now())}
	if upd.Title != nil {
		set += ", title = ?"
		args = append(args, *upd.Title)
	}
	if upd.Description != nil {
		set += ", description = ?"
		args = append(args, nullString(*upd.Description))
	}
	if upd.Composer != nil {
		set += ", composer = ?"
		args = append(args, nullString(*upd.Composer))
	}
	if upd.FolderID != nil {
		set += ", folder_id = ?"
		args = append(args, nullString(*upd.FolderID))
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, `UPDATE sheet_music SET `+set+` WHERE id = ?`, args...)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrNotFound // unknown folder
		}
		return fmt.Errorf("updating sheet music: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSheetMusic removes an item. Videos, NWC files and comments cascade.
func (s *SQLiteStore) DeleteSheetMusic(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sheet_music WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting sheet music: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddVideo attaches a practice video link to an item.
func (s *SQLiteStore) AddVideo(ctx context.Context, v *Video) error {
	err := insertVideo(ctx, s.db, v)
	if err != nil && isConstraintViolation(err) {
		return ErrNotFound
	}
	return err
}

// AddNwcFile attaches a NWC file to an item.
func (s *SQLiteStore) AddNwcFile(ctx context.Context, f *NwcFile) error {
	if f.ID == "" {
		f.ID = NewID()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sheet_music_nwc_files (id, sheet_music_id, filepath, created_at)
		VALUES (?, ?, ?, ?)
	`, f.ID, f.SheetMusicID, f.Filepath, formatTime(f.CreatedAt))
	if isConstraintViolation(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("inserting nwc file: %w", err)
	}
	return nil
}
