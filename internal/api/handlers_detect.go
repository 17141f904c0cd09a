package api

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/micro-nova/codecd/internal/config"
	"github.com/micro-nova/codecd/internal/events"
	"github.com/micro-nova/codecd/internal/irq"
)

func (h *Handlers) getCalibration(w http.ResponseWriter, r *http.Request) {
	if h.calib == "" {
		writeError(w, badRequest("no calibration file configured"))
		return
	}
	cal, err := config.LoadCalibration(h.calib)
	if errors.Is(err, fs.ErrNotExist) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":   "not_found",
			"message": "calibration file does not exist yet",
		})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, config.CalibrationFileFrom(cal))
}

// putCalibration applies a new calibration and then persists it. The
// codec decides when it takes effect (deferred while a headset is in).
func (h *Handlers) putCalibration(w http.ResponseWriter, r *http.Request) {
	f := config.DefaultCalibrationFile()
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeError(w, badRequest("invalid JSON: "+err.Error()))
		return
	}
	cal, err := f.Calibration()
	if err != nil {
		writeError(w, badRequest(err.Error()))
		return
	}
	if err := h.codec.UpdateCalibration(hwContext(r), cal); err != nil {
		writeError(w, err)
		return
	}
	if h.calib != "" {
		if err := config.SaveCalibration(h.calib, cal); err != nil {
			writeError(w, err)
			return
		}
	}
	h.events.Publish(events.Event{Type: events.TypeCalibration, Msg: "updated via api"})
	writeJSON(w, http.StatusOK, config.CalibrationFileFrom(cal))
}

// injectIRQ delivers an interrupt as if the pin had fired. Masked lines are
// dropped by the dispatcher and still answer 202.
func (h *Handlers) injectIRQ(w http.ResponseWriter, r *http.Request) {
	line, ok := irq.ParseLine(chi.URLParam(r, "line"))
	if !ok {
		writeError(w, badRequest("unknown interrupt line"))
		return
	}
	if err := h.irq.Dispatch(hwContext(r), line); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"line":   line,
		"status": h.codec.Status(),
	})
}
