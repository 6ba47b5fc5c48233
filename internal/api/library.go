// ABOUTME: Sheet music library endpoints: items, bulk upload, extra attachments and folders
// ABOUTME: Folder writes and item deletion are restricted to admins by the route table

package api

import (
	"net/http"

	"github.com/2389/chorale/internal/library"
	"github.com/2389/chorale/internal/store"
)

func (a *API) handleListSheetMusic(w http.ResponseWriter, r *http.Request) {
	items, err := a.svc.Catalog.List(r.Context(), r.URL.Query().Get("folderId"))
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	a.sendJSON(w, http.StatusOK, newSheetMusicViews(items))
}

func (a *API) handleGetSheetMusic(w http.ResponseWriter, r *http.Request) {
	item, err := a.svc.Catalog.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	a.sendJSON(w, http.StatusOK, newSheetMusicView(item))
}

func (a *API) handleCreateSheetMusic(w http.ResponseWriter, r *http.Request) {
	if err := a.parseMultipart(w, r); err != nil {
		a.sendError(w, r, err)
		return
	}

	videos := make(map[store.VoicePart]string)
	for _, part := range store.VoiceParts {
		if u := formValue(r, "video_"+string(part)); u != "" {
			videos[part] = u
		}
	}

	item, err := a.svc.Catalog.Create(r.Context(), library.NewItem{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Composer:    r.FormValue("composer"),
		FolderID:    formValue(r, "folderId"),
		File:        formFile(r, "file"),
		FileURL:     formValue(r, "fileUrl"),
		Videos:      videos,
	})
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	a.sendJSON(w, http.StatusOK, newSheetMusicView(item))
}

func (a *API) handleBulkSheetMusic(w http.ResponseWriter, r *http.Request) {
	if err := a.parseMultipart(w, r); err != nil {
		a.sendError(w, r, err)
		return
	}
	items, err := a.svc.Catalog.Bulk(r.Context(), formValue(r, "folderId"), formFiles(r, "files"))
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	a.sendJSON(w, http.StatusOK, map[string]any{"success": true, "items": items})
}

type sheetMusicPatch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Composer    *string `json:"composer"`
	FolderID    *string `json:"folderId"`
}

func (a *API) handleUpdateSheetMusic(w http.ResponseWriter, r *http.Request) {
	var req sheetMusicPatch
	if err := decodeJSON(r, &req); err != nil {
		a.sendError(w, r, err)
		return
	}
	item, err := a.svc.Catalog.Update(r.Context(), r.PathValue("id"), library.ItemChange{
		Title:       req.Title,
		Description: req.Description,
		Composer:    req.Composer,
		FolderID:    req.FolderID,
	})
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	a.sendJSON(w, http.StatusOK, newSheetMusicView(item))
}

func (a *API) handleDeleteSheetMusic(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Catalog.Delete(r.Context(), r.PathValue("id")); err != nil {
		a.sendError(w, r, err)
		return
	}
	a.sendJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (a *API) handleSheetMusicAttachments(w http.ResponseWriter, r *http.Request) {
	if err := a.parseMultipart(w, r); err != nil {
		a.sendError(w, r, err)
		return
	}
	item, err := a.svc.Catalog.AddAttachments(r.Context(), r.PathValue("id"), formFile(r, "nwcFile"), formValue(r, "videoUrl"))
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	a.sendJSON(w, http.StatusOK, newSheetMusicView(item))
}

func (a *API) handleListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := a.svc.Folders.List(r.Context())
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	a.sendJSON(w, http.StatusOK, folders)
}

func (a *API) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	folder, err := a.svc.Folders.Create(r.Context())
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	a.sendJSON(w, http.StatusOK, folder)
}

type folderPatch struct {
	Name      *string `json:"name"`
	Slug      *string `json:"slug"`
	SortOrder *int    `json:"sortOrder"`
}

func (a *API) handleUpdateFolder(w http.ResponseWriter, r *http.Request) {
	var req folderPatch
	if err := decodeJSON(r, &req); err != nil {
		a.sendError(w, r, err)
		return
	}
	folder, err := a.svc.Folders.Update(r.Context(), r.PathValue("id"), library.FolderChange{
		Name:      req.Name,
		Slug:      req.Slug,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	a.sendJSON(w, http.StatusOK, folder)
}

func (a *API) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Folders.Delete(r.Context(), r.PathValue("id")); err != nil {
		a.sendError(w, r, err)
		return
	}
	a.sendJSON(w, http.StatusOK, map[string]bool{"success": true})
}
