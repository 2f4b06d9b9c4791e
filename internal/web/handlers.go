package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/edgard/cropwise/internal/crop"
	"github.com/edgard/cropwise/internal/database"
	apperrors "github.com/edgard/cropwise/internal/errors"
	"github.com/edgard/cropwise/internal/session"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type recommendResponse struct {
	Label   string           `json:"label"`
	Display string           `json:"display"`
	Input   crop.InputVector `json:"input"`
	Notices []crop.Notice    `json:"notices"`
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Turns []session.Turn `json:"turns"`
	Error *errorBody     `json:"error"`
}

type transcriptResponse struct {
	SessionID string         `json:"session_id"`
	Turns     []session.Turn `json:"turns"`
}

type recommendationsResponse struct {
	Recommendations []database.Recommendation `json:"recommendations"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := sessionFrom(r.Context()).Snapshot()

	var buf bytes.Buffer
	if err := s.page.Execute(&buf, s.pageData(snap)); err != nil {
		s.logger.Error("failed to render page", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleRecommendForm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	sess := sessionFrom(r.Context())
	if _, _, err := sess.Recommend(r.Context(), formEntries(r.PostForm)); err != nil {
		s.logPredictionError(sess, err)
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleChatForm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	// Remote failures are recorded on the user turn and shown inline.
	if _, err := sessionFrom(r.Context()).Send(r.Context(), r.PostFormValue("message")); errors.Is(err, session.ErrEnded) {
		s.logger.Debug("chat on ended session")
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleRecommendAPI(w http.ResponseWriter, r *http.Request) {
	entries, err := decodeEntries(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	sess := sessionFrom(r.Context())
	rec, notices, err := sess.Recommend(r.Context(), entries)
	if err != nil {
		if errors.Is(err, session.ErrEnded) {
			writeError(w, http.StatusConflict, "SESSION_ENDED", err.Error())
			return
		}
		s.logPredictionError(sess, err)
		writeError(w, http.StatusInternalServerError, apperrors.Code(err), s.messages.PredictionFailed)
		return
	}

	if notices == nil {
		notices = []crop.Notice{}
	}
	writeJSON(w, http.StatusOK, recommendResponse{
		Label:   rec.Label,
		Display: rec.Display,
		Input:   rec.Input,
		Notices: notices,
	})
}

func (s *Server) handleChatAPI(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFormBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}

	ex, err := sessionFrom(r.Context()).Send(r.Context(), req.Message)
	if errors.Is(err, session.ErrEnded) {
		writeError(w, http.StatusConflict, "SESSION_ENDED", err.Error())
		return
	}

	resp := chatResponse{Turns: ex.Turns()}
	if resp.Turns == nil {
		resp.Turns = []session.Turn{}
	}
	if err != nil {
		notice := err.Error()
		if ex.User != nil && ex.User.Failure != nil {
			notice = ex.User.Failure.Notice
		}
		resp.Error = &errorBody{Code: apperrors.Code(err), Message: notice}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	turns := sess.Transcript()
	if turns == nil {
		turns = []session.Turn{}
	}

	writeJSON(w, http.StatusOK, transcriptResponse{SessionID: sess.ID, Turns: turns})
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a positive integer")
			return
		}
		limit = min(n, database.MaxRecentLimit)
	}

	resp := recommendationsResponse{Recommendations: []database.Recommendation{}}
	if s.recent != nil {
		recs, err := s.recent.Recent(r.Context(), limit)
		if err != nil {
			s.logger.Error("failed to read recommendation log", zap.Error(err))
			writeError(w, http.StatusInternalServerError, apperrors.Code(err), "failed to read recommendations")
			return
		}
		if recs != nil {
			resp.Recommendations = recs
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) logPredictionError(sess *session.Session, err error) {
	if errors.Is(err, session.ErrEnded) {
		return
	}
	s.logger.Error("prediction failed", zap.String("session_id", sess.ID), zap.Error(err))
}

// formEntries picks the field values present in a submitted form.
func formEntries(form url.Values) map[crop.Field]string {
	entries := make(map[crop.Field]string, crop.NumFeatures)
	for _, b := range crop.Bounds {
		if _, ok := form[string(b.Field)]; ok {
			entries[b.Field] = form.Get(string(b.Field))
		}
	}

	return entries
}

// decodeEntries reads a JSON object of field values. Numbers and strings
// are both accepted and handed to the panel as text; unknown keys and other
// value types are rejected.
func decodeEntries(w http.ResponseWriter, r *http.Request) (map[crop.Field]string, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFormBytes))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid request body")
	}

	entries := make(map[crop.Field]string, len(raw))
	for key, value := range raw {
		field := crop.Field(key)
		if _, _, ok := crop.BoundFor(field); !ok {
			return nil, fmt.Errorf("unknown field %q", key)
		}

		switch v := value.(type) {
		case json.Number:
			entries[field] = v.String()
		case string:
			entries[field] = v
		default:
			return nil, fmt.Errorf("field %q must be a number", key)
		}
	}

	return entries, nil
}
