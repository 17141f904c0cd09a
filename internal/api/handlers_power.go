package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/micro-nova/codecd/internal/codec"
	"github.com/micro-nova/codecd/internal/hardware"
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	codec.Status
	Lines      map[string]bool   `json:"lines"`
	IRQDropped uint64            `json:"irq_dropped"`
	Chip       hardware.ChipInfo `json:"chip"`
}

func (h *Handlers) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:     h.codec.Status(),
		Lines:      h.irq.Mask(),
		IRQDropped: h.irq.Dropped(),
		Chip:       h.chip,
	})
}

// done replies with the status after a successful power operation.
func (h *Handlers) done(w http.ResponseWriter, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.codec.Status())
}

func (h *Handlers) stream(w http.ResponseWriter, r *http.Request) {
	dir, ok := codec.ParseDirection(chi.URLParam(r, "dir"))
	if !ok {
		writeError(w, badRequest("direction must be playback or capture"))
		return
	}
	ctx := hwContext(r)
	switch chi.URLParam(r, "action") {
	case "start":
		h.done(w, h.codec.StreamStart(ctx, dir))
	case "stop":
		h.done(w, h.codec.StreamStop(ctx, dir))
	default:
		writeError(w, badRequest("action must be start or stop"))
	}
}

func (h *Handlers) adc(w http.ResponseWriter, r *http.Request) {
	ch, err := intParam(r, "ch")
	if err != nil {
		writeError(w, err)
		return
	}
	ctx := hwContext(r)
	switch chi.URLParam(r, "action") {
	case "acquire":
		h.done(w, h.codec.AcquireADC(ctx, ch))
	case "release":
		h.done(w, h.codec.ReleaseADC(ctx, ch))
	default:
		writeError(w, badRequest("action must be acquire or release"))
	}
}

func (h *Handlers) chargePump(w http.ResponseWriter, r *http.Request) {
	ctx := hwContext(r)
	switch chi.URLParam(r, "action") {
	case "enable":
		h.done(w, h.codec.EnableChargePump(ctx))
	case "disable":
		h.done(w, h.codec.DisableChargePump(ctx))
	default:
		writeError(w, badRequest("action must be enable or disable"))
	}
}

// MuteRequest is the body of PUT /api/mute.
type MuteRequest struct {
	Mute *bool `json:"mute"`
}

func (h *Handlers) setMute(w http.ResponseWriter, r *http.Request) {
	var req MuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, badRequest("invalid JSON: "+err.Error()))
		return
	}
	if req.Mute == nil {
		writeError(w, badRequest("mute is required"))
		return
	}
	h.done(w, h.codec.SetDigitalMute(hwContext(r), *req.Mute))
}

func (h *Handlers) setBandgap(w http.ResponseWriter, r *http.Request) {
	mode, ok := codec.ParseBandgapMode(chi.URLParam(r, "mode"))
	if !ok {
		writeError(w, badRequest("mode must be off, audio or mbhc"))
		return
	}
	h.done(w, h.codec.EnableBandgap(hwContext(r), mode))
}
