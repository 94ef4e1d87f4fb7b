package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/smartfarm/field-controller/internal/irrigation"
	"github.com/smartfarm/field-controller/internal/sensor"
	"github.com/smartfarm/field-controller/internal/status"
)

// fakeControls records control requests from HTTP handlers.
type fakeControls struct {
	irrigations int
	resets      int
}

func (f *fakeControls) RequestManualIrrigation() { f.irrigations++ }
func (f *fakeControls) RequestReset()            { f.resets++ }

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker, *fakeControls) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		PollMs:     5000,
		DurationMs: 5000,
		CooldownMs: 300000,
		MaxDaily:   10,
		Broker:     "tcp://192.168.1.200:1883",
		HTTPAddr:   ":8080",
	}
	tr := status.NewTracker(start, cfg)
	fc := &fakeControls{}
	srv := New(":0", tr, fc, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# metrics"))
	}))
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts, tr, fc
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr, _ := newTestServer(t)

	var cyc status.Cycle
	cyc.Phase = irrigation.PhaseIrrigating
	cyc.PumpActive = true
	cyc.DailyCount = 4
	cyc.Threshold = 30
	cyc.SystemHealthy = true
	cyc.Channels[sensor.ChannelSoil] = status.ChannelReading{Value: 22.5, Valid: true}
	cyc.Counts = status.Counts{Cycles: 120, PumpStarts: 4}
	tr.Update(cyc)
	tr.SetMQTTConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}

	if sj.Status.Phase != "IRRIGATING" {
		t.Errorf("Phase: got %q, want IRRIGATING", sj.Status.Phase)
	}
	if !sj.Status.PumpActive {
		t.Error("expected pump_active=true")
	}
	if sj.Status.DailyCount != 4 {
		t.Errorf("DailyCount: got %d, want 4", sj.Status.DailyCount)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("MQTT.Broker: got %q", sj.Status.MQTT.Broker)
	}
	if sj.Status.Sensors["soil_moisture"].Value != 22.5 {
		t.Errorf("soil: got %+v", sj.Status.Sensors["soil_moisture"])
	}
	if sj.Status.Config.PollMs != 5000 {
		t.Errorf("Config.PollMs: got %d, want 5000", sj.Status.Config.PollMs)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr, _ := newTestServer(t)

	var cyc status.Cycle
	cyc.Phase = irrigation.PhaseIdle
	cyc.SystemHealthy = true
	tr.Update(cyc)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}
}

func TestHTMLEndpointIndexHTML(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
}

func TestHTMLShowsSensorRows(t *testing.T) {
	ts, tr, _ := newTestServer(t)

	var cyc status.Cycle
	cyc.SystemHealthy = true
	cyc.Channels[sensor.ChannelSoil] = status.ChannelReading{Value: 22.5, Valid: true}
	cyc.Channels[sensor.ChannelLight] = status.ChannelReading{Value: 0, Valid: false, Disconnected: true}
	tr.Update(cyc)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}

	html := string(data)
	if !strings.Contains(html, "soil_moisture") {
		t.Error("expected soil_moisture row in HTML")
	}
	if !strings.Contains(html, "disconnected") {
		t.Error("expected disconnected marker for the light channel")
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
}

func TestIrrigateRequiresPost(t *testing.T) {
	ts, _, fc := newTestServer(t)

	resp, err := http.Get(ts.URL + "/irrigate")
	if err != nil {
		t.Fatalf("GET /irrigate: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
	if fc.irrigations != 0 {
		t.Error("GET must not trigger irrigation")
	}
}

func TestIrrigatePost(t *testing.T) {
	ts, _, fc := newTestServer(t)

	resp, err := http.Post(ts.URL+"/irrigate", "", nil)
	if err != nil {
		t.Fatalf("POST /irrigate: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if fc.irrigations != 1 {
		t.Errorf("irrigation requests: got %d, want 1", fc.irrigations)
	}
}

func TestResetPost(t *testing.T) {
	ts, _, fc := newTestServer(t)

	resp, err := http.Post(ts.URL+"/reset", "", nil)
	if err != nil {
		t.Fatalf("POST /reset: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if fc.resets != 1 {
		t.Errorf("reset requests: got %d, want 1", fc.resets)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr, _ := newTestServer(t)

	resp1, _ := http.Get(ts.URL + "/index.json")
	var sj1 status.StatusJSON
	json.NewDecoder(resp1.Body).Decode(&sj1)
	resp1.Body.Close()
	if sj1.Status.PumpActive {
		t.Error("expected pump_active=false initially")
	}

	var cyc status.Cycle
	cyc.Phase = irrigation.PhaseIrrigating
	cyc.PumpActive = true
	cyc.SystemHealthy = true
	tr.Update(cyc)
	tr.SetMQTTConnected(true)

	resp2, _ := http.Get(ts.URL + "/index.json")
	var sj2 status.StatusJSON
	json.NewDecoder(resp2.Body).Decode(&sj2)
	resp2.Body.Close()

	if !sj2.Status.PumpActive {
		t.Error("expected pump_active=true after update")
	}
	if sj2.Status.Phase != "IRRIGATING" {
		t.Errorf("Phase: got %q, want IRRIGATING", sj2.Status.Phase)
	}
	if !sj2.Status.MQTT.Connected {
		t.Error("expected MQTT connected after update")
	}
}
