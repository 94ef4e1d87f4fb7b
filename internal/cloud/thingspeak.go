// Package cloud uploads telemetry to ThingSpeak. Uploads are best-effort:
// failures are logged and never block the control loop.
package cloud

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// DefaultEndpoint is the ThingSpeak update API.
const DefaultEndpoint = "https://api.thingspeak.com/update.json"

// Telemetry is one upload's worth of field values.
type Telemetry struct {
	Temperature  float64
	Humidity     float64
	SoilMoisture float64
	Light        float64
	PumpActive   bool
	DailyCount   int
}

// Config controls upload behavior.
type Config struct {
	Endpoint   string
	APIKey     string
	Timeout    time.Duration // per-request timeout
	MaxRetries uint64        // retries per upload before giving up
}

// Uploader posts telemetry to ThingSpeak behind a circuit breaker so a dead
// uplink degrades to cheap rejections instead of a timeout every interval.
type Uploader struct {
	cfg     Config
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// New creates an Uploader. Zero-value timeouts and retry counts get
// conservative defaults.
func New(cfg Config) *Uploader {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}

	return &Uploader{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "thingspeak",
			MaxRequests: 1,
			Interval:    2 * time.Minute,
			Timeout:     5 * time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

// Upload posts one telemetry sample, retrying transient failures with
// exponential backoff. Returns gobreaker.ErrOpenState while the breaker is
// open.
func (u *Uploader) Upload(t Telemetry) error {
	_, err := u.breaker.Execute(func() (interface{}, error) {
		op := func() error {
			return u.post(t)
		}
		bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), u.cfg.MaxRetries)
		return nil, backoff.Retry(op, bo)
	})
	return err
}

func (u *Uploader) post(t Telemetry) error {
	pump := 0
	if t.PumpActive {
		pump = 1
	}

	form := url.Values{
		"api_key": {u.cfg.APIKey},
		"field1":  {formatFloat(t.Temperature)},
		"field2":  {formatFloat(t.Humidity)},
		"field3":  {formatFloat(t.SoilMoisture)},
		"field4":  {formatFloat(t.Light)},
		"field5":  {strconv.Itoa(pump)},
		"field6":  {strconv.Itoa(t.DailyCount)},
	}

	resp, err := u.client.Post(u.cfg.Endpoint, "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	// ThingSpeak returns the new entry id, or "0" when the update was
	// rejected (bad key, rate limit).
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if strings.TrimSpace(string(body)) == "0" {
		return fmt.Errorf("update rejected")
	}

	return nil
}

// State reports the breaker state for the status page.
func (u *Uploader) State() gobreaker.State {
	return u.breaker.State()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
