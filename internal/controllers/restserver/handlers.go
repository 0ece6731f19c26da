package restserver

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/chrissnell/capnograph/internal/pipeline"
	"github.com/chrissnell/capnograph/internal/types"
	"github.com/chrissnell/capnograph/pkg/responseformat"
)

// Handlers contains all HTTP handlers for the REST server
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		formatter:  responseformat.NewFormatter(ctrl.restConfig.EnableCORS),
	}
}

func (h *Handlers) write(w http.ResponseWriter, req *http.Request, status int, data any) {
	if err := h.formatter.WriteResponse(w, req, status, data); err != nil {
		h.controller.logger.Errorf("error encoding response: %v", err)
	}
}

func (h *Handlers) fail(w http.ResponseWriter, req *http.Request, status int, msg string) {
	if err := h.formatter.WriteError(w, req, status, msg); err != nil {
		h.controller.logger.Errorf("error encoding error response: %v", err)
	}
}

// pipelineError maps an error from the pipeline to a response
func (h *Handlers) pipelineError(w http.ResponseWriter, req *http.Request, err error) {
	if errors.Is(err, pipeline.ErrInvalidSetting) {
		h.fail(w, req, http.StatusBadRequest, err.Error())
		return
	}
	h.controller.logger.Errorf("pipeline request failed: %v", err)
	h.fail(w, req, http.StatusServiceUnavailable, "metric pipeline unavailable")
}

// GetSnapshot returns the current display values
func (h *Handlers) GetSnapshot(w http.ResponseWriter, req *http.Request) {
	snap, err := h.controller.backends.Pipeline.Snapshot(req.Context())
	if err != nil {
		h.pipelineError(w, req, err)
		return
	}
	h.write(w, req, http.StatusOK, snap)
}

// GetHistory returns the rolling display history for flow, co2 or ratio.
// An optional since parameter, in epoch seconds, keeps only newer points.
func (h *Handlers) GetHistory(w http.ResponseWriter, req *http.Request) {
	p := h.controller.backends.Pipeline
	name := mux.Vars(req)["channel"]

	var since time.Time
	if raw := req.URL.Query().Get("since"); raw != "" {
		secs, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
			h.fail(w, req, http.StatusBadRequest, "since must be epoch seconds")
			return
		}
		since = types.TimeFromEpoch(secs)
	}

	var (
		points []types.Point
		err    error
	)
	if name == "ratio" {
		points, err = p.RatioHistory(req.Context())
	} else {
		ch, perr := types.ParseChannel(name)
		if perr != nil {
			h.fail(w, req, http.StatusNotFound, perr.Error())
			return
		}
		points, err = p.History(req.Context(), ch)
	}
	if err != nil {
		h.pipelineError(w, req, err)
		return
	}

	filtered := []types.Point{}
	for _, pt := range points {
		if pt.Timestamp.After(since) {
			filtered = append(filtered, pt)
		}
	}
	h.write(w, req, http.StatusOK, filtered)
}

// PutSetting changes one pipeline setting. The new value is taken from the
// "value" form or query parameter.
func (h *Handlers) PutSetting(w http.ResponseWriter, req *http.Request) {
	p := h.controller.backends.Pipeline
	setting := mux.Vars(req)["setting"]
	raw := req.FormValue("value")
	if raw == "" {
		h.fail(w, req, http.StatusBadRequest, "value parameter is required")
		return
	}

	var err error
	switch setting {
	case "flow-trigger", "co2-trigger":
		v, perr := strconv.ParseFloat(raw, 64)
		if perr != nil {
			h.fail(w, req, http.StatusBadRequest, "value must be a number")
			return
		}
		if setting == "flow-trigger" {
			err = p.SetFlowTrigger(req.Context(), v)
		} else {
			err = p.SetCo2Trigger(req.Context(), v)
		}
	case "history-capacity":
		n, perr := strconv.Atoi(raw)
		if perr != nil {
			h.fail(w, req, http.StatusBadRequest, "value must be an integer")
			return
		}
		err = p.SetHistoryCapacity(req.Context(), n)
	default:
		h.fail(w, req, http.StatusNotFound, "unknown setting "+setting)
		return
	}
	if err != nil {
		h.pipelineError(w, req, err)
		return
	}

	snap, err := p.Snapshot(req.Context())
	if err != nil {
		h.pipelineError(w, req, err)
		return
	}
	h.write(w, req, http.StatusOK, snap.Settings)
}

// ResetSession clears the running statistics and starts a new session
func (h *Handlers) ResetSession(w http.ResponseWriter, req *http.Request) {
	id, err := h.controller.backends.Pipeline.ResetSession(req.Context())
	if err != nil {
		h.pipelineError(w, req, err)
		return
	}
	h.write(w, req, http.StatusOK, map[string]string{"session_id": id.String()})
}

// GetSessions lists the sessions in the SQLite store
func (h *Handlers) GetSessions(w http.ResponseWriter, req *http.Request) {
	store := h.controller.backends.Sessions
	if store == nil {
		h.fail(w, req, http.StatusNotFound, "session store not enabled")
		return
	}

	sessions, err := store.Sessions(req.Context())
	if err != nil {
		h.controller.logger.Errorf("error listing sessions: %v", err)
		h.fail(w, req, http.StatusInternalServerError, "error listing sessions")
		return
	}
	h.write(w, req, http.StatusOK, sessions)
}

// GetLog reports the CSV log file in use
func (h *Handlers) GetLog(w http.ResponseWriter, req *http.Request) {
	rotator := h.controller.backends.Log
	if rotator == nil {
		h.fail(w, req, http.StatusNotFound, "CSV log not enabled")
		return
	}
	h.write(w, req, http.StatusOK, map[string]string{"path": rotator.Path()})
}

// RotateLog starts logging to the file named by the "path" parameter
func (h *Handlers) RotateLog(w http.ResponseWriter, req *http.Request) {
	path := req.FormValue("path")
	if path == "" {
		h.fail(w, req, http.StatusBadRequest, "path parameter is required")
		return
	}
	h.rotate(w, req, path)
}

// StopLog goes back to the default log file
func (h *Handlers) StopLog(w http.ResponseWriter, req *http.Request) {
	h.rotate(w, req, "")
}

func (h *Handlers) rotate(w http.ResponseWriter, req *http.Request, path string) {
	rotator := h.controller.backends.Log
	if rotator == nil {
		h.fail(w, req, http.StatusNotFound, "CSV log not enabled")
		return
	}

	if err := rotator.Rotate(path); err != nil {
		h.controller.logger.Errorf("error rotating log: %v", err)
		h.fail(w, req, http.StatusInternalServerError, err.Error())
		return
	}
	h.write(w, req, http.StatusOK, map[string]string{"path": rotator.Path()})
}
