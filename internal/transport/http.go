// Package transport talks to the collector over HTTP.
//
// Normal sends are awaited by their caller. Beacon sends run on a detached
// goroutine with their own deadline; nobody waits for them and their outcome
// is only logged.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/RoofStorm/tiger-engagement/internal/model"
	"go.uber.org/zap"
)

const (
	DefaultTimeout       = 10 * time.Second
	DefaultBeaconTimeout = 5 * time.Second

	trackPath         = "/analytics/track"
	cornersPath       = "/analytics/corners"
	notificationsPath = "/notifications"
	dailyLoginPath    = "/points/daily-login"
)

type Config struct {
	APIBase       string
	Timeout       time.Duration
	BeaconTimeout time.Duration
}

type HTTP struct {
	base          string
	client        *http.Client
	beaconTimeout time.Duration
	logger        *zap.Logger

	mu    sync.RWMutex
	token string

	beacons sync.WaitGroup
}

// NewHTTP builds the transport. A nil client gets one with cfg.Timeout.
func NewHTTP(cfg Config, client *http.Client, logger *zap.Logger) (*HTTP, error) {
	if cfg.APIBase == "" {
		return nil, ErrNoAPIBase
	}
	if _, err := url.Parse(cfg.APIBase); err != nil {
		return nil, fmt.Errorf("parse api base: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BeaconTimeout <= 0 {
		cfg.BeaconTimeout = DefaultBeaconTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTP{
		base:          strings.TrimRight(cfg.APIBase, "/"),
		client:        client,
		beaconTimeout: cfg.BeaconTimeout,
		logger:        logger,
	}, nil
}

// SetToken sets the bearer token sent with every request. Empty clears it.
func (h *HTTP) SetToken(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.token = token
}

func (h *HTTP) SendEvents(ctx context.Context, events []model.TrackedEvent) error {
	return h.do(ctx, http.MethodPost, trackPath, model.TrackBatch{Events: events}, nil)
}

func (h *HTTP) BeaconEvents(events []model.TrackedEvent) {
	h.beacon(trackPath, model.TrackBatch{Events: events}, len(events))
}

func (h *HTTP) SendCorners(ctx context.Context, records []model.CornerRecord) error {
	return h.do(ctx, http.MethodPost, cornersPath, model.CornerBatch{Events: records}, nil)
}

func (h *HTTP) BeaconCorners(records []model.CornerRecord) {
	h.beacon(cornersPath, model.CornerBatch{Events: records}, len(records))
}

func (h *HTTP) ListNotifications(ctx context.Context) ([]model.Notification, error) {
	var out []model.Notification
	if err := h.do(ctx, http.MethodGet, notificationsPath, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (h *HTTP) MarkNotificationRead(ctx context.Context, id string) error {
	path := notificationsPath + "/" + url.PathEscape(id) + "/read"
	return h.do(ctx, http.MethodPatch, path, nil, nil)
}

func (h *HTTP) ClaimDailyLogin(ctx context.Context) (model.DailyLoginReward, error) {
	var out model.DailyLoginReward
	if err := h.do(ctx, http.MethodPost, dailyLoginPath, nil, &out); err != nil {
		return model.DailyLoginReward{}, err
	}
	return out, nil
}

// WaitBeacons blocks until detached beacon sends have finished. Only
// process shutdown should call it.
func (h *HTTP) WaitBeacons() {
	h.beacons.Wait()
}

func (h *HTTP) beacon(path string, body any, count int) {
	payload, err := json.Marshal(body)
	if err != nil {
		h.logger.Error("failed to encode beacon", zap.String("path", path), zap.Error(err))
		return
	}

	h.beacons.Add(1)
	go func() {
		defer h.beacons.Done()

		ctx, cancel := context.WithTimeout(context.Background(), h.beaconTimeout)
		defer cancel()

		// browsers send beacons as text/plain; the collector accepts either
		if err := h.send(ctx, http.MethodPost, path, payload, "text/plain;charset=UTF-8", nil); err != nil {
			h.logger.Warn("beacon delivery failed",
				zap.String("path", path),
				zap.Int("count", count),
				zap.Error(err),
			)
			return
		}
		h.logger.Debug("beacon delivered", zap.String("path", path), zap.Int("count", count))
	}()
}

func (h *HTTP) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}
	return h.send(ctx, method, path, payload, "application/json", out)
}

func (h *HTTP) send(ctx context.Context, method, path string, payload []byte, contentType string, out any) error {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.base+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	h.mu.RLock()
	token := h.token
	h.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env model.Envelope[json.RawMessage]
	decodeErr := json.Unmarshal(respBody, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && env.Error != "" {
			return fmt.Errorf("%w: %d %s: %s", ErrUnexpectedStatus, resp.StatusCode, path, env.Error)
		}
		return fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, path)
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if decodeErr != nil {
		return fmt.Errorf("failed to parse response: %w", decodeErr)
	}
	if !env.Success {
		return fmt.Errorf("%w: %s: %s", ErrRequestFailed, path, env.Error)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to parse response data: %w", err)
		}
	}
	return nil
}
