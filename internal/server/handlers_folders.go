package server

import (
	"net/http"

	"github.com/datapilot-ai/datapilot/internal/model"
)

// HandleCreateFolder handles POST /v1/folders.
func (h *Handlers) HandleCreateFolder(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	var req model.CreateFolderRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := model.ValidateFolderName(req.Name); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	folder, err := h.db.CreateFolder(r.Context(), claims.UserID(), req.Name)
	if err != nil {
		h.writeInternalError(w, r, "failed to create folder", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, folder)
}

// HandleListFolders handles GET /v1/folders.
func (h *Handlers) HandleListFolders(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	folders, err := h.db.ListFolders(r.Context(), claims.UserID())
	if err != nil {
		h.writeInternalError(w, r, "failed to list folders", err)
		return
	}
	if folders == nil {
		folders = []model.Folder{}
	}
	writeJSON(w, r, http.StatusOK, folders)
}

// HandleRenameFolder handles PATCH /v1/folders/{folder_id}.
func (h *Handlers) HandleRenameFolder(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	folderID, err := pathUUID(r, "folder_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	var req model.RenameFolderRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := model.ValidateFolderName(req.Name); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	folder, err := h.db.RenameFolder(r.Context(), claims.UserID(), folderID, req.Name)
	if err != nil {
		h.writeStorageError(w, r, "folder", err)
		return
	}
	writeJSON(w, r, http.StatusOK, folder)
}

// HandleDeleteFolder handles DELETE /v1/folders/{folder_id}.
// Questions inside the folder are kept, just un-assigned.
func (h *Handlers) HandleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	folderID, err := pathUUID(r, "folder_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	if err := h.db.DeleteFolder(r.Context(), claims.UserID(), folderID); err != nil {
		h.writeStorageError(w, r, "folder", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
