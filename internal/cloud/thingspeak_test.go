package cloud

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sony/gobreaker"
)

func TestUploadPostsAllFields(t *testing.T) {
	var form map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		form = r.PostForm
		w.Write([]byte(`{"entry_id":42}`))
	}))
	defer srv.Close()

	u := New(Config{Endpoint: srv.URL, APIKey: "SECRET", MaxRetries: 1})

	err := u.Upload(Telemetry{
		Temperature:  21.5,
		Humidity:     55,
		SoilMoisture: 27.25,
		Light:        80,
		PumpActive:   true,
		DailyCount:   4,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]string{
		"api_key": "SECRET",
		"field1":  "21.50",
		"field2":  "55.00",
		"field3":  "27.25",
		"field4":  "80.00",
		"field5":  "1",
		"field6":  "4",
	}
	for key, val := range want {
		got := form[key]
		if len(got) != 1 || got[0] != val {
			t.Errorf("%s: got %v, want %q", key, got, val)
		}
	}
}

func TestUploadPumpOff(t *testing.T) {
	var pump string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		pump = r.PostForm.Get("field5")
		w.Write([]byte(`{"entry_id":43}`))
	}))
	defer srv.Close()

	u := New(Config{Endpoint: srv.URL, APIKey: "k", MaxRetries: 1})
	if err := u.Upload(Telemetry{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pump != "0" {
		t.Errorf("field5: got %q, want 0", pump)
	}
}

func TestUploadRetriesTransientFailure(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"entry_id":44}`))
	}))
	defer srv.Close()

	u := New(Config{Endpoint: srv.URL, APIKey: "k", MaxRetries: 2})
	if err := u.Upload(Telemetry{}); err != nil {
		t.Fatalf("expected retry to succeed, got: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 requests, got %d", calls)
	}
}

func TestUploadRejectedUpdate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0")) // ThingSpeak rejection
	}))
	defer srv.Close()

	u := New(Config{Endpoint: srv.URL, APIKey: "bad", MaxRetries: 1})
	if err := u.Upload(Telemetry{}); err == nil {
		t.Error("expected error for rejected update")
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	u := New(Config{Endpoint: srv.URL, APIKey: "k", MaxRetries: 1})

	// Three failed uploads trip the breaker.
	for i := 0; i < 3; i++ {
		if err := u.Upload(Telemetry{}); err == nil {
			t.Fatalf("upload %d: expected error", i)
		}
	}
	if u.State() != gobreaker.StateOpen {
		t.Fatalf("breaker state: got %v, want open", u.State())
	}

	// While open, uploads are rejected without touching the server.
	if err := u.Upload(Telemetry{}); err != gobreaker.ErrOpenState {
		t.Errorf("expected ErrOpenState, got %v", err)
	}
}

func TestDefaults(t *testing.T) {
	u := New(Config{APIKey: "k"})
	if u.cfg.Endpoint != DefaultEndpoint {
		t.Errorf("endpoint: got %q", u.cfg.Endpoint)
	}
	if u.cfg.Timeout == 0 || u.cfg.MaxRetries == 0 {
		t.Error("expected non-zero default timeout and retries")
	}
}
