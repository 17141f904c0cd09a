// Package api implements the HTTP control and status API of the codec daemon.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/micro-nova/codecd/internal/codec"
	"github.com/micro-nova/codecd/internal/codecerr"
	"github.com/micro-nova/codecd/internal/events"
	"github.com/micro-nova/codecd/internal/hardware"
	"github.com/micro-nova/codecd/internal/irq"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	codec  Codec
	irq    Interrupts
	events EventBus
	chip   hardware.ChipInfo
	calib  string
}

// Codec is the part of codec.Codec the handlers drive.
type Codec interface {
	Status() codec.Status
	StreamStart(ctx context.Context, dir codec.Direction) error
	StreamStop(ctx context.Context, dir codec.Direction) error
	AcquireADC(ctx context.Context, ch int) error
	ReleaseADC(ctx context.Context, ch int) error
	EnableChargePump(ctx context.Context) error
	DisableChargePump(ctx context.Context) error
	SetDigitalMute(ctx context.Context, mute bool) error
	EnableBandgap(ctx context.Context, mode codec.BandgapMode) error
	UpdateCalibration(ctx context.Context, cal *codec.Calibration) error
}

// Interrupts is the part of irq.Dispatcher the handlers use.
type Interrupts interface {
	Mask() map[string]bool
	Dropped() uint64
	Dispatch(ctx context.Context, line irq.Line) error
}

// EventBus is the interface for subscribing to codec events.
type EventBus interface {
	Subscribe(id string) <-chan events.Event
	Unsubscribe(id string)
	Publish(ev events.Event)
}

// hwContext detaches a hardware sequence from the request so a client
// hanging up cannot abort it halfway.
func hwContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes err as a JSON response. Codec errors carry their own
// status; anything else is a 500.
func writeError(w http.ResponseWriter, err error) {
	var ce *codecerr.Error
	if errors.As(err, &ce) {
		writeJSON(w, ce.Status(), ce)
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error":   "internal_error",
		"message": err.Error(),
	})
}

func badRequest(msg string) error {
	return codecerr.Config("request", msg)
}

// intParam reads an integer path parameter by name.
func intParam(r *http.Request, name string) (int, error) {
	s := chi.URLParam(r, name)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, badRequest("invalid " + name + " parameter")
	}
	return n, nil
}
