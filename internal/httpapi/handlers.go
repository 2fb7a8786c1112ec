package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"vidrepo/internal/repository"
	"vidrepo/internal/services"
	"vidrepo/internal/tree"
)

func (s *Server) handleListRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := s.svc.ListRepositories(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]RepositoryResponse, 0, len(repos))
	for _, repo := range repos {
		out = append(out, fromRepository(repo, false))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateRepository(w http.ResponseWriter, r *http.Request) {
	var req CreateRepositoryRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	repo, err := s.svc.CreateRepository(r.Context(), req.Name, req.Brief, nil)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, fromRepository(repo, true))
}

func (s *Server) handleGetRepository(w http.ResponseWriter, r *http.Request) {
	repoID, err := int64Param(r, "repoID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	repo, err := s.svc.OpenRepository(r.Context(), repoID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, fromRepository(repo, true))
}

func (s *Server) handleDeleteRepository(w http.ResponseWriter, r *http.Request) {
	repoID, err := int64Param(r, "repoID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.svc.DeleteRepository(r.Context(), repoID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	repoID, err := int64Param(r, "repoID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	repo, err := s.svc.OpenRepository(r.Context(), repoID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, repo.Tree)
}

func (s *Server) handleCreateNode(w http.ResponseWriter, r *http.Request) {
	repoID, err := int64Param(r, "repoID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req CreateNodeRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	node, err := s.svc.CreateNode(r.Context(), repoID, req.ParentID, req.Name, tree.Kind(req.Kind))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, node)
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	repoID, err := int64Param(r, "repoID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.svc.DeleteNode(r.Context(), repoID, chi.URLParam(r, "nodeID")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateContent(w http.ResponseWriter, r *http.Request) {
	repoID, err := int64Param(r, "repoID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req UpdateContentRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.svc.EditFileContent(r.Context(), repoID, chi.URLParam(r, "nodeID"), req.Content); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRenameNode(w http.ResponseWriter, r *http.Request) {
	repoID, err := int64Param(r, "repoID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req RenameNodeRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.svc.RenameNode(r.Context(), repoID, chi.URLParam(r, "nodeID"), req.Name); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleNode(w http.ResponseWriter, r *http.Request) {
	repoID, err := int64Param(r, "repoID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.svc.ToggleOpen(r.Context(), repoID, chi.URLParam(r, "nodeID")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	repoID, err := int64Param(r, "repoID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	assets, err := s.svc.ListAssets(r.Context(), repoID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, fromAssets(assets))
}

// handleUploadAssets accepts multipart "file" parts. Ingestion runs in the
// background unless wait=true; progress is streamed on /events.
func (s *Server) handleUploadAssets(w http.ResponseWriter, r *http.Request) {
	repoID, err := int64Param(r, "repoID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.fail(w, r, services.Wrap(services.ErrValidation, "api", "upload", "invalid multipart form", err))
		return
	}
	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		s.fail(w, r, services.Wrap(services.ErrValidation, "api", "upload", "no file parts", nil))
		return
	}

	uploads := make([]repository.Upload, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			s.fail(w, r, services.Wrap(services.ErrValidation, "api", "upload", header.Filename, err))
			return
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			s.fail(w, r, services.Wrap(services.ErrValidation, "api", "upload", header.Filename, err))
			return
		}
		uploads = append(uploads, repository.Upload{
			Name:     header.Filename,
			MimeType: header.Header.Get("Content-Type"),
			Data:     data,
		})
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	upload := s.svc.UploadAssetsAsync
	status := http.StatusAccepted
	if wait {
		upload = s.svc.UploadAssets
		status = http.StatusCreated
	}
	assets, err := upload(r.Context(), repoID, uploads)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, status, fromAssets(assets))
}

func (s *Server) handleReingest(w http.ResponseWriter, r *http.Request) {
	repoID, err := int64Param(r, "repoID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	assetID, err := int64Param(r, "assetID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	asset, err := s.svc.ReingestAsset(r.Context(), repoID, assetID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, fromAsset(asset))
}

func (s *Server) handleListCommits(w http.ResponseWriter, r *http.Request) {
	repoID, err := int64Param(r, "repoID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	commits, err := s.svc.ListCommits(r.Context(), repoID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if commits == nil {
		s.writeJSON(w, http.StatusOK, []any{})
		return
	}
	s.writeJSON(w, http.StatusOK, commits)
}

func (s *Server) handleGetCommit(w http.ResponseWriter, r *http.Request) {
	repoID, err := int64Param(r, "repoID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.svc.GetCommit(r.Context(), repoID, chi.URLParam(r, "commitID"))
	if err != nil {
		s.fail(w, r, fmt.Errorf("commit lookup: %w", err))
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}
