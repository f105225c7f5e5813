package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkloader/internal/lifecycle"
	"github.com/JakeFAU/linkloader/internal/media"
	"github.com/JakeFAU/linkloader/internal/preferences"
)

type submitLinkRequest struct {
	Text        string `json:"text"`
	RequesterID string `json:"requester_id"`
	ChatID      string `json:"chat_id"`
	MessageID   string `json:"message_id"`
}

type submitLinkResponse struct {
	RequestID string `json:"request_id"`
	Engaged   bool   `json:"engaged"`
}

// submitLink accepts a message. Messages without a supported link return 200
// with engaged=false and are tracked as ignored; everything else is handed to
// the pipeline in the background and answered with 202.
func (s *Server) submitLink(w http.ResponseWriter, r *http.Request) {
	var req submitLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.RequesterID = strings.TrimSpace(req.RequesterID)
	if req.RequesterID == "" {
		writeError(w, http.StatusBadRequest, "requester_id required")
		return
	}
	if req.ChatID == "" {
		req.ChatID = req.RequesterID
	}

	id, err := s.deps.IDs.NewID()
	if err != nil {
		s.logger.Error("generate request id", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to generate request id")
		return
	}
	rawURL, ok := s.deps.Links.Extract(req.Text)
	rec := media.RequestRecord{
		ID:          id,
		RawURL:      rawURL,
		RequesterID: req.RequesterID,
		Status:      media.RequestQueued,
		Created:     s.now(),
	}
	if !ok {
		rec.Status = media.RequestIgnored
	}
	if err := s.deps.Requests.Create(r.Context(), rec); err != nil {
		s.logger.Error("create request record", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to track request")
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, submitLinkResponse{RequestID: id, Engaged: false})
		return
	}

	job := lifecycle.Job{
		RequestID:   id,
		RawURL:      rawURL,
		RequesterID: req.RequesterID,
		Target:      media.Target{ChatID: req.ChatID, ReplyTo: req.MessageID},
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.deps.Jobs.Handle(s.base, job)
	}()
	writeJSON(w, http.StatusAccepted, submitLinkResponse{RequestID: id, Engaged: true})
}

func (s *Server) getRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "request_id")
	rec, err := s.deps.Requests.Get(r.Context(), id)
	if errors.Is(err, media.ErrRequestNotFound) {
		writeError(w, http.StatusNotFound, "request not found")
		return
	}
	if err != nil {
		s.logger.Error("get request", zap.String("request_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load request")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) getPreferences(w http.ResponseWriter, r *http.Request) {
	requesterID := chi.URLParam(r, "requester_id")
	prefs, err := s.deps.Preferences.Get(r.Context(), requesterID)
	if err != nil {
		s.logger.Error("get preferences", zap.String("requester_id", requesterID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load preferences")
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) togglePreference(w http.ResponseWriter, r *http.Request) {
	requesterID := chi.URLParam(r, "requester_id")
	flag := media.PreferenceFlag(chi.URLParam(r, "flag"))
	prefs, err := s.deps.Preferences.Toggle(r.Context(), requesterID, flag)
	if errors.Is(err, preferences.ErrUnknownFlag) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("toggle preference",
			zap.String("requester_id", requesterID),
			zap.String("flag", string(flag)),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save preferences")
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) now() time.Time {
	if s.deps.Clock == nil {
		return time.Now().UTC()
	}
	return s.deps.Clock.Now()
}
