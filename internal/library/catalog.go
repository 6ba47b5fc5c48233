// ABOUTME: Sheet music item operations: single and bulk upload, extra attachments, edits
// ABOUTME: Applies the folder policy to every stored file

package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/2389/chorale/internal/media"
	"github.com/2389/chorale/internal/store"
)

// ValidationError carries a message safe to show the submitter.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Preparer turns an upload body into the bytes to store.
type Preparer interface {
	Prepare(ctx context.Context, r io.Reader, mimeType string) (*media.Prepared, error)
}

// Catalog manages sheet music items.
type Catalog struct {
	store      store.LibraryStore
	storage    media.Storage
	transcoder Preparer
	logger     *slog.Logger
	now        func() time.Time
}

// NewCatalog creates a catalog service. transcoder may be nil.
func NewCatalog(s store.LibraryStore, storage media.Storage, transcoder Preparer, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		store:      s,
		storage:    storage,
		transcoder: transcoder,
		logger:     logger.With("component", "library"),
		now:        time.Now,
	}
}

// NewItem is a sheet music submission. Either File or FileURL must be set.
type NewItem struct {
	Title       string
	Description string
	Composer    string
	FolderID    string
	File        *media.Upload
	FileURL     string
	Videos      map[store.VoicePart]string
}

// folderSlug returns the slug of folderID, or "" when no folder is given.
func (c *Catalog) folderSlug(ctx context.Context, folderID string) (string, error) {
	if folderID == "" {
		return "", nil
	}
	f, err := c.store.GetFolder(ctx, folderID)
	if err != nil {
		return "", err
	}
	return f.Slug, nil
}

func checkPolicy(slug string, f media.Upload) error {
	if slug == "" {
		return nil
	}
	if !AllowsFile(slug, f.Filename) {
		return invalid("%s: this folder accepts %s", f.Filename, strings.Join(Formats(slug), ", "))
	}
	if !AllowsSize(slug, f.Size) {
		return invalid("%s: file is larger than 2GB", f.Filename)
	}
	return nil
}

// Create stores a new item with its optional part videos.
func (c *Catalog) Create(ctx context.Context, item NewItem) (*store.SheetMusic, error) {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return nil, invalid("title is required")
	}
	folderID := strings.TrimSpace(item.FolderID)
	slug, err := c.folderSlug(ctx, folderID)
	if err != nil {
		return nil, err
	}

	var filepath string
	if item.File != nil && !item.File.Empty() {
		if err := checkPolicy(slug, *item.File); err != nil {
			return nil, err
		}
		filepath, err = c.storeScore(ctx, *item.File, "")
		if err != nil {
			return nil, err
		}
	} else {
		filepath = strings.TrimSpace(item.FileURL)
	}
	if filepath == "" {
		return nil, invalid("a score file or URL is required")
	}

	m := &store.SheetMusic{
		FolderID:    folderID,
		Title:       title,
		Description: strings.TrimSpace(item.Description),
		Composer:    strings.TrimSpace(item.Composer),
		Filepath:    filepath,
	}
	for _, part := range store.VoiceParts {
		if url := strings.TrimSpace(item.Videos[part]); url != "" {
			m.Videos = append(m.Videos, store.Video{Part: part, VideoURL: url})
		}
	}

	if err := c.store.CreateSheetMusic(ctx, m); err != nil {
		c.removeFile(ctx, filepath)
		return nil, err
	}
	c.logger.Info("sheet music created", "sheet_music_id", m.ID, "title", title)
	return c.store.GetSheetMusic(ctx, m.ID)
}

// storeScore writes an uploaded score under sheet-music/. Videos are
// transcoded first; a transcoded file gets an .mp4 name.
func (c *Catalog) storeScore(ctx context.Context, f media.Upload, infix string) (string, error) {
	body, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("opening upload: %w", err)
	}
	defer body.Close()

	name := f.Filename
	var r io.Reader = body
	if c.transcoder != nil && media.IsVideo(f.ContentType) {
		prepared, err := c.transcoder.Prepare(ctx, body, f.ContentType)
		if err != nil {
			return "", fmt.Errorf("preparing upload: %w", err)
		}
		defer prepared.Close()
		if prepared.Transcoded {
			name = strings.TrimSuffix(name, path.Ext(name)) + ".mp4"
		}
		r = prepared
	}

	key := "sheet-music/" + media.Millis(c.now()) + "-" + infix + media.SafeName(name)
	filepath, _, err := c.storage.Save(ctx, key, r)
	if err != nil {
		return "", fmt.Errorf("storing score: %w", err)
	}
	return filepath, nil
}

// BulkItem is one item created by a bulk upload.
type BulkItem struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Filepath string `json:"filepath"`
}

// Bulk creates one item per uploaded file, titled after the file name.
func (c *Catalog) Bulk(ctx context.Context, folderID string, files []media.Upload) ([]BulkItem, error) {
	files = media.NonEmpty(files)
	if len(files) == 0 {
		return nil, invalid("choose files to upload")
	}
	folderID = strings.TrimSpace(folderID)
	slug, err := c.folderSlug(ctx, folderID)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if err := checkPolicy(slug, f); err != nil {
			return nil, err
		}
	}

	items := make([]BulkItem, 0, len(files))
	for _, f := range files {
		filepath, err := c.storeScore(ctx, f, media.RandomSuffix(6)+"-")
		if err != nil {
			return items, err
		}
		title := media.TitleFromFilename(f.Filename)
		if title == "" {
			title = f.Filename
		}
		m := &store.SheetMusic{FolderID: folderID, Title: title, Filepath: filepath}
		if err := c.store.CreateSheetMusic(ctx, m); err != nil {
			c.removeFile(ctx, filepath)
			return items, err
		}
		items = append(items, BulkItem{ID: m.ID, Title: m.Title, Filepath: m.Filepath})
	}
	c.logger.Info("sheet music bulk upload", "folder_id", folderID, "items", len(items))
	return items, nil
}

// AddAttachments adds an NWC file and/or a full-choir video link to an item.
// Items filed in a folder must be in a score folder.
func (c *Catalog) AddAttachments(ctx context.Context, id string, nwc *media.Upload, videoURL string) (*store.SheetMusic, error) {
	m, err := c.store.GetSheetMusic(ctx, id)
	if err != nil {
		return nil, err
	}
	hasNwc := nwc != nil && !nwc.Empty()
	videoURL = strings.TrimSpace(videoURL)
	if (hasNwc || videoURL != "") && m.Folder != nil && !IsScoreFolder(m.Folder.Slug) {
		return nil, invalid("NWC files and practice videos belong to score folders")
	}

	if hasNwc {
		if media.Ext(nwc.Filename) != "nwc" {
			return nil, invalid("%s is not an NWC file", nwc.Filename)
		}
		if err := c.addNwc(ctx, id, *nwc); err != nil {
			return nil, err
		}
	}
	if videoURL != "" {
		if err := c.store.AddVideo(ctx, &store.Video{SheetMusicID: id, Part: store.PartFull, VideoURL: videoURL}); err != nil {
			return nil, err
		}
	}
	return c.store.GetSheetMusic(ctx, id)
}

func (c *Catalog) addNwc(ctx context.Context, id string, f media.Upload) error {
	body, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening upload: %w", err)
	}
	defer body.Close()

	key := "sheet-music/nwc/" + media.Millis(c.now()) + "-" + media.SafeName(f.Filename)
	filepath, _, err := c.storage.Save(ctx, key, body)
	if err != nil {
		return fmt.Errorf("storing nwc file: %w", err)
	}
	if err := c.store.AddNwcFile(ctx, &store.NwcFile{SheetMusicID: id, Filepath: filepath}); err != nil {
		c.removeFile(ctx, filepath)
		return err
	}
	return nil
}

// ItemChange is a requested item edit. Nil fields stay unchanged.
type ItemChange struct {
	Title       *string
	Description *string
	Composer    *string
	FolderID    *string
}

// Update edits an item's text fields or moves it between folders.
func (c *Catalog) Update(ctx context.Context, id string, change ItemChange) (*store.SheetMusic, error) {
	upd := store.SheetMusicUpdate{
		Description: trimmed(change.Description),
		Composer:    trimmed(change.Composer),
		FolderID:    trimmed(change.FolderID),
	}
	if change.Title != nil {
		title := strings.TrimSpace(*change.Title)
		if title == "" {
			return nil, invalid("title is required")
		}
		upd.Title = &title
	}
	if err := c.store.UpdateSheetMusic(ctx, id, upd); err != nil {
		return nil, err
	}
	return c.store.GetSheetMusic(ctx, id)
}

// Delete removes an item with its videos, NWC files and comments, then its
// stored files best-effort.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	m, err := c.store.GetSheetMusic(ctx, id)
	if err != nil {
		return err
	}
	if err := c.store.DeleteSheetMusic(ctx, id); err != nil {
		return err
	}
	c.removeFile(ctx, m.Filepath)
	for _, n := range m.NwcFiles {
		c.removeFile(ctx, n.Filepath)
	}
	c.logger.Info("sheet music deleted", "sheet_music_id", id)
	return nil
}

// Get returns one item.
func (c *Catalog) Get(ctx context.Context, id string) (*store.SheetMusic, error) {
	return c.store.GetSheetMusic(ctx, id)
}

// List returns items newest first, optionally in one folder.
func (c *Catalog) List(ctx context.Context, folderID string) ([]store.SheetMusic, error) {
	return c.store.ListSheetMusic(ctx, store.SheetMusicFilter{FolderID: strings.TrimSpace(folderID)})
}

// removeFile deletes a stored upload. External URLs are ignored.
func (c *Catalog) removeFile(ctx context.Context, publicPath string) {
	key, ok := c.storage.KeyFromPath(publicPath)
	if !ok {
		return
	}
	if err := c.storage.Delete(ctx, key); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn("removing stored file", "path", publicPath, "error", err)
	}
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
