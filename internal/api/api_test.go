package api_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/micro-nova/codecd/internal/api"
	"github.com/micro-nova/codecd/internal/auth"
	"github.com/micro-nova/codecd/internal/codec"
	"github.com/micro-nova/codecd/internal/config"
	"github.com/micro-nova/codecd/internal/events"
	"github.com/micro-nova/codecd/internal/hardware"
	"github.com/micro-nova/codecd/internal/irq"
)

type testEnv struct {
	srv   *httptest.Server
	codec *codec.Codec
	irq   *irq.Dispatcher
	bus   *events.Bus
	calib string
}

// newTestServer spins up a full router over a probed codec on the mock bus.
func newTestServer(t *testing.T, keysDir string) *testEnv {
	t.Helper()
	ctx := context.Background()

	bus := hardware.NewMock()
	d := irq.NewDispatcher()
	c := codec.New(hardware.NewRegMap(bus, hardware.CacheSize), d, codec.Options{Delay: func(time.Duration) {}})
	c.Attach(d)
	if err := c.Probe(ctx); err != nil {
		t.Fatalf("Probe: %v", err)
	}

	authSvc, err := auth.NewService(keysDir)
	if err != nil {
		t.Fatalf("auth.NewService: %v", err)
	}

	calib := filepath.Join(t.TempDir(), "calibration.toml")
	eb := events.NewBus()
	router := api.NewRouter(api.Deps{
		Codec:           c,
		IRQ:             d,
		Events:          eb,
		Auth:            authSvc,
		Chip:            hardware.ChipInfo{ID: 0x0102, Revision: 1},
		CalibrationPath: calib,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		authSvc.Close()
	})
	return &testEnv{srv: srv, codec: c, irq: d, bus: eb, calib: calib}
}

// do is a convenience helper for making requests to the test server.
func do(t *testing.T, env *testEnv, method, path, body string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, env.srv.URL+path, bodyReader)
	if err != nil {
		t.Fatalf("NewRequest %s %s: %v", method, path, err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := env.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Do %s %s: %v", method, path, err)
	}
	return resp
}

// decodeJSON reads and decodes a JSON response body into v.
func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
}

// requireStatus fails the test if the response status doesn't match.
func requireStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d; body: %s", resp.StatusCode, expected, body)
	}
}

func requireError(t *testing.T, resp *http.Response, status int, kind string) {
	t.Helper()
	requireStatus(t, resp, status)
	var body map[string]interface{}
	decodeJSON(t, resp, &body)
	if body["error"] != kind {
		t.Errorf("error = %v, want %q", body["error"], kind)
	}
	if body["message"] == nil {
		t.Error("expected 'message' field in error response")
	}
}

type statusBody struct {
	Power struct {
		Bandgap     string `json:"bandgap"`
		ClockActive bool   `json:"clock_active"`
		StreamRefs  uint   `json:"stream_refs"`
		ADCRefs     uint   `json:"adc_refs"`
	} `json:"power"`
	Phase      string          `json:"phase"`
	Calibrated bool            `json:"calibrated"`
	Lines      map[string]bool `json:"lines"`
	Chip       struct {
		ID       uint32 `json:"id"`
		Revision uint8  `json:"revision"`
	} `json:"chip"`
}

func getStatus(t *testing.T, env *testEnv) statusBody {
	t.Helper()
	resp := do(t, env, http.MethodGet, "/api/status", "")
	requireStatus(t, resp, http.StatusOK)
	var st statusBody
	decodeJSON(t, resp, &st)
	return st
}

func armDetection(t *testing.T, env *testEnv) {
	t.Helper()
	cal, err := config.DefaultCalibrationFile().Calibration()
	if err != nil {
		t.Fatal(err)
	}
	if err := env.codec.StartDetection(context.Background(), cal, env.bus); err != nil {
		t.Fatalf("StartDetection: %v", err)
	}
}

// --- Tests ---

func TestGetStatus(t *testing.T) {
	env := newTestServer(t, t.TempDir())
	st := getStatus(t, env)

	if st.Power.Bandgap != "audio" || !st.Power.ClockActive {
		t.Errorf("power = %+v, want probed audio bandgap with clock", st.Power)
	}
	if st.Phase != "idle" || st.Calibrated {
		t.Errorf("phase = %q calibrated = %t", st.Phase, st.Calibrated)
	}
	if !st.Lines["bus_health"] || st.Lines["insertion"] {
		t.Errorf("lines = %v", st.Lines)
	}
	if st.Chip.ID != 0x0102 || st.Chip.Revision != 1 {
		t.Errorf("chip = %+v", st.Chip)
	}
}

func TestStreams(t *testing.T) {
	env := newTestServer(t, t.TempDir())

	resp := do(t, env, http.MethodPost, "/api/streams/playback/start", "")
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()
	resp = do(t, env, http.MethodPost, "/api/streams/capture/start", "")
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()
	if st := getStatus(t, env); st.Power.StreamRefs != 2 {
		t.Errorf("stream_refs = %d, want 2", st.Power.StreamRefs)
	}

	for _, dir := range []string{"playback", "capture"} {
		resp = do(t, env, http.MethodPost, "/api/streams/"+dir+"/stop", "")
		requireStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	}

	resp = do(t, env, http.MethodPost, "/api/streams/playback/stop", "")
	requireError(t, resp, http.StatusConflict, "protocol_violation")
}

func TestBadRequests(t *testing.T) {
	env := newTestServer(t, t.TempDir())
	tests := []struct {
		method, path, body string
	}{
		{http.MethodPost, "/api/streams/sideways/start", ""},
		{http.MethodPost, "/api/streams/playback/pause", ""},
		{http.MethodPost, "/api/adc/x/acquire", ""},
		{http.MethodPost, "/api/adc/7/acquire", ""},
		{http.MethodPost, "/api/adc/1/borrow", ""},
		{http.MethodPost, "/api/chargepump/boost", ""},
		{http.MethodPut, "/api/mute", `{}`},
		{http.MethodPut, "/api/mute", `{not json`},
		{http.MethodPost, "/api/bandgap/turbo", ""},
		{http.MethodPost, "/api/irq/doorbell", ""},
		{http.MethodPut, "/api/calibration", `{"bias":4}`},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			resp := do(t, env, tt.method, tt.path, tt.body)
			requireError(t, resp, http.StatusBadRequest, "configuration_error")
		})
	}
}

func TestADCAndChargePump(t *testing.T) {
	env := newTestServer(t, t.TempDir())

	resp := do(t, env, http.MethodPost, "/api/adc/3/acquire", "")
	requireStatus(t, resp, http.StatusOK)
	var st statusBody
	decodeJSON(t, resp, &st)
	if st.Power.ADCRefs != 1 {
		t.Errorf("adc_refs = %d, want 1", st.Power.ADCRefs)
	}
	resp = do(t, env, http.MethodPost, "/api/adc/3/acquire", "")
	requireError(t, resp, http.StatusConflict, "protocol_violation")

	resp = do(t, env, http.MethodPost, "/api/chargepump/enable", "")
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()
	resp = do(t, env, http.MethodPut, "/api/mute", `{"mute":true}`)
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

func TestBandgapViolation(t *testing.T) {
	env := newTestServer(t, t.TempDir())

	// the clock is running after probe
	resp := do(t, env, http.MethodPost, "/api/bandgap/off", "")
	requireError(t, resp, http.StatusConflict, "protocol_violation")
	if st := getStatus(t, env); st.Power.Bandgap != "audio" {
		t.Errorf("bandgap = %q after rejected transition", st.Power.Bandgap)
	}
}

func TestInjectIRQ(t *testing.T) {
	env := newTestServer(t, t.TempDir())

	// masked before detection is armed: dropped, not an error
	resp := do(t, env, http.MethodPost, "/api/irq/insertion", "")
	requireStatus(t, resp, http.StatusAccepted)
	resp.Body.Close()
	if st := getStatus(t, env); st.Phase != "idle" {
		t.Errorf("phase = %q after masked insertion", st.Phase)
	}

	armDetection(t, env)
	resp = do(t, env, http.MethodPost, "/api/irq/insertion", "")
	requireStatus(t, resp, http.StatusAccepted)
	resp.Body.Close()

	st := getStatus(t, env)
	if st.Phase != "polling" {
		t.Errorf("phase = %q, want polling", st.Phase)
	}
	if st.Lines["insertion"] || !st.Lines["removal"] || !st.Lines["potential"] {
		t.Errorf("lines while polling = %v", st.Lines)
	}

	resp = do(t, env, http.MethodPost, "/api/irq/removal", "")
	requireStatus(t, resp, http.StatusAccepted)
	resp.Body.Close()
	if st := getStatus(t, env); st.Phase != "armed_for_insertion" {
		t.Errorf("phase = %q after removal", st.Phase)
	}
}

func TestCalibration(t *testing.T) {
	env := newTestServer(t, t.TempDir())

	resp := do(t, env, http.MethodGet, "/api/calibration", "")
	requireStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	armDetection(t, env)
	resp = do(t, env, http.MethodPut, "/api/calibration", `{"bias":3,"mic_current":2}`)
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	if _, err := os.Stat(env.calib); err != nil {
		t.Fatalf("calibration not persisted: %v", err)
	}
	resp = do(t, env, http.MethodGet, "/api/calibration", "")
	requireStatus(t, resp, http.StatusOK)
	var f config.CalibrationFile
	decodeJSON(t, resp, &f)
	if f.Bias != 3 || f.MicCurrent != 2 {
		t.Errorf("calibration = %+v", f)
	}
	if f.SetupPlugRemovalUs != config.DefaultCalibrationFile().SetupPlugRemovalUs {
		t.Errorf("unset field not defaulted: %d", f.SetupPlugRemovalUs)
	}
	if st := getStatus(t, env); st.Phase != "armed_for_insertion" || !st.Calibrated {
		t.Errorf("status after update = %+v", st)
	}
}

func TestAuthRequired(t *testing.T) {
	dir := t.TempDir()
	keys := `{"ops":{"key":"k1","role":"control"}}`
	if err := os.WriteFile(filepath.Join(dir, "keys.json"), []byte(keys), 0644); err != nil {
		t.Fatal(err)
	}
	env := newTestServer(t, dir)

	resp := do(t, env, http.MethodGet, "/api/status", "")
	requireStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	resp = do(t, env, http.MethodGet, "/api/status?api-key=k1", "")
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	// metrics stay reachable for the scraper
	resp = do(t, env, http.MethodGet, "/metrics", "")
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

func TestMetrics(t *testing.T) {
	env := newTestServer(t, t.TempDir())

	resp := do(t, env, http.MethodGet, "/metrics", "")
	requireStatus(t, resp, http.StatusOK)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "codecd_bandgap_transitions_total") {
		t.Error("metrics output lacks bandgap transitions")
	}
}

func TestNotFound(t *testing.T) {
	env := newTestServer(t, t.TempDir())

	resp := do(t, env, http.MethodGet, "/api/nonexistent", "")
	requireStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestSSESubscribe(t *testing.T) {
	env := newTestServer(t, t.TempDir())
	armDetection(t, env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.srv.URL+"/api/subscribe", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	client := &http.Client{
		Transport: &http.Transport{
			DisableCompression: true,
		},
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	requireStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	evs := make(chan map[string]interface{}, 4)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var ev map[string]interface{}
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err == nil {
				evs <- ev
			}
		}
		close(evs)
	}()

	next := func() map[string]interface{} {
		t.Helper()
		select {
		case ev := <-evs:
			return ev
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for SSE event")
			return nil
		}
	}

	if ev := next(); ev["type"] != "status" || ev["status"] == nil {
		t.Fatalf("first event = %v, want status snapshot", ev)
	}

	// the subscription is registered before the snapshot is sent
	if err := env.irq.Dispatch(context.Background(), irq.Insertion); err != nil {
		t.Fatal(err)
	}
	if ev := next(); ev["type"] != "jack" || ev["jack"] != "inserted" {
		t.Errorf("event = %v, want jack inserted", ev)
	}

	resp2 := do(t, env, http.MethodPut, "/api/calibration", `{"bias":1}`)
	requireStatus(t, resp2, http.StatusOK)
	resp2.Body.Close()
	if ev := next(); ev["type"] != "calibration" {
		t.Errorf("event = %v, want calibration", ev)
	}
}
