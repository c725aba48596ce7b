package host

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andresmejia3/facegate/internal/session"
	"github.com/andresmejia3/facegate/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

type modeRequest struct {
	Mode string `json:"mode" validate:"required,oneof=register verify idle registering verifying"`
}

type descriptorRequest struct {
	Descriptor []float64 `json:"descriptor" validate:"required,min=1,max=4096"`
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// decodeAndValidate reads a JSON body into dst and runs its validate tags.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		respondError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", strings.ToLower(fe.Field()), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	mode, err := session.ParseMode(req.Mode)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.ctrl.SetMode(mode)
	respondJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleSetDescriptor(w http.ResponseWriter, r *http.Request) {
	var req descriptorRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	if err := s.ctrl.SetTemplate(req.Descriptor); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleClearDescriptor(w http.ResponseWriter, r *http.Request) {
	s.ctrl.ClearTemplate()
	respondJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleLoadTemplate(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		respondError(w, http.StatusServiceUnavailable, "template storage not configured")
		return
	}
	name := chi.URLParam(r, "name")
	if err := s.validate.Var(name, "required,max=128"); err != nil {
		respondError(w, http.StatusBadRequest, "invalid template name")
		return
	}

	t, err := s.templates.GetTemplate(r.Context(), name)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "loading template: "+err.Error())
		return
	}
	if err := s.ctrl.SetTemplate(t.Embedding); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	id, events := s.hub.subscribe()
	defer s.hub.unsubscribe(id)

	sendSSEEvent(w, flusher, "status", s.ctrl.Status())

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			sendSSEEvent(w, flusher, string(ev.Type), ev)
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, _ := json.Marshal(data)
	_, _ = io.WriteString(w, "event: "+eventType+"\n")
	_, _ = io.WriteString(w, "data: ")
	_, _ = io.Copy(w, bytes.NewReader(jsonData))
	_, _ = io.WriteString(w, "\n\n")
	flusher.Flush()
}
