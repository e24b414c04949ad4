package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"book_ghostwriter/workflow"
)

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req workflow.TurnRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := s.turnContext(r.Context())
	defer cancel()

	res, err := s.engine.Turn(ctx, req, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleChatStream runs a turn and relays its events as server-sent events,
// one "data: {json}" frame per event. Failures after the stream has started
// arrive as an error event.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req workflow.TurnRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, err)
		return
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ctx, cancel := s.turnContext(r.Context())
	defer cancel()

	sink := func(ev workflow.Event) {
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Warn("encode event", zap.Error(err))
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return
		}
		_ = rc.Flush()
	}
	if _, err := s.engine.Turn(ctx, req, sink); err != nil {
		s.logger.Warn("streamed turn failed", zap.String("thread_id", req.ConversationID), zap.Error(err))
	}
}
