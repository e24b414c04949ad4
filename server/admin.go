package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"book_ghostwriter/prompts"
	"book_ghostwriter/storage"
	"book_ghostwriter/workflow"
)

var errNotConfigured = errors.New("not configured")

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.Load(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleConversationList(w http.ResponseWriter, r *http.Request) {
	if s.conversations == nil {
		writeJSON(w, http.StatusNotImplemented, errorResp{Error: errNotConfigured.Error(), Code: "not_configured"})
		return
	}
	var stage workflow.Stage
	if v := r.URL.Query().Get("stage"); v != "" {
		parsed, err := workflow.ParseStage(v)
		if err != nil {
			writeError(w, fmt.Errorf("%w: %v", workflow.ErrInvalidInput, err))
			return
		}
		stage = parsed
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := s.conversations.List(r.Context(), stage, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []storage.ConversationSummary{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handlePromptList(w http.ResponseWriter, r *http.Request) {
	if s.prompts == nil {
		writeJSON(w, http.StatusNotImplemented, errorResp{Error: errNotConfigured.Error(), Code: "not_configured"})
		return
	}
	list, err := s.prompts.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type promptPutReq struct {
	Description string `json:"description"`
	Prompt      string `json:"prompt"`
}

type promptPutResp struct {
	Name    string `json:"name"`
	Version int    `json:"version"`
}

// handlePromptPut publishes a new active version. The next turn of any
// conversation picks it up.
func (s *Server) handlePromptPut(w http.ResponseWriter, r *http.Request) {
	if s.prompts == nil {
		writeJSON(w, http.StatusNotImplemented, errorResp{Error: errNotConfigured.Error(), Code: "not_configured"})
		return
	}
	var req promptPutReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "prompt is required", Code: "invalid_input"})
		return
	}
	name := prompts.Key(r.PathValue("name"))
	version, err := s.prompts.Publish(r.Context(), prompts.Specialist{
		Name:        name,
		Description: req.Description,
		Prompt:      req.Prompt,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, promptPutResp{Name: name, Version: version})
}

type chaptersResp struct {
	Project  storage.Project   `json:"project"`
	Chapters []storage.Chapter `json:"chapters"`
}

func (s *Server) handleChapters(w http.ResponseWriter, r *http.Request) {
	if s.projects == nil {
		writeJSON(w, http.StatusNotImplemented, errorResp{Error: errNotConfigured.Error(), Code: "not_configured"})
		return
	}
	id := r.PathValue("id")
	project, err := s.projects.Project(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	chapters, err := s.projects.Chapters(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chaptersResp{Project: project, Chapters: chapters})
}
