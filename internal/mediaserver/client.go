// Package mediaserver drives the media server's segmented-recording and
// relay-push APIs.
package mediaserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"segment-recorder/internal/recorder"
)

const (
	startRecordPath = "/api/record/start"
	stopRecordPath  = "/api/record/stop"
	startPushPath   = "/api/relay/push/start"
	stopPushPath    = "/api/relay/push/stop"

	// SecretHeader carries Config.Secret on every request.
	SecretHeader = "X-Api-Secret"
)

// ErrRejected is returned when the media server answers with a non-zero code.
var ErrRejected = errors.New("media server rejected request")

// Config locates the media server.
type Config struct {
	URL     string
	Secret  string
	App     string
	Timeout time.Duration
}

// StartRecordRequest starts segmented recording of one stream.
type StartRecordRequest struct {
	App               string `json:"app"`
	Stream            string `json:"stream"`
	Format            string `json:"format"`
	Segmentation      string `json:"segmentation"`
	SegmentDurationMS int64  `json:"segment_duration_ms"`
	StartOnKeyFrame   bool   `json:"start_on_key_frame"`
	RecordData        bool   `json:"record_data"`
	OutputPath        string `json:"output_path"`
}

// StopRecordRequest stops recording of one stream.
type StopRecordRequest struct {
	App    string `json:"app"`
	Stream string `json:"stream"`
}

// StartPushRequest relays a local stream to a remote RTMP URL.
type StartPushRequest struct {
	App    string `json:"app"`
	Stream string `json:"stream"`
	URL    string `json:"url"`
}

// StartPushResponse names the relay session the media server opened.
type StartPushResponse struct {
	FixedHeader
	Data struct {
		SessionID string `json:"session_id"`
	} `json:"data"`
}

// StopPushRequest disconnects one relay session.
type StopPushRequest struct {
	SessionID string `json:"session_id"`
}

// FixedHeader is the envelope of every media server reply.
type FixedHeader struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Client implements recorder.MediaServer over HTTP.
type Client struct {
	cfg Config
	cli *http.Client
}

var (
	_ recorder.MediaServer = (*Client)(nil)
	_ recorder.Relay       = (*Client)(nil)
)

// NewClient returns a Client. A zero Timeout defaults to 5s.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Client{
		cfg: cfg,
		cli: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        30,
				MaxIdleConnsPerHost: 30,
				MaxConnsPerHost:     100,
			},
		},
	}
}

// StartRecording implements recorder.MediaServer.
func (c *Client) StartRecording(ctx context.Context, stream string, p recorder.RecordParams) error {
	req := StartRecordRequest{
		App:               c.cfg.App,
		Stream:            stream,
		Format:            p.Format,
		Segmentation:      p.Segmentation,
		SegmentDurationMS: p.SegmentDuration.Milliseconds(),
		StartOnKeyFrame:   p.StartOnKeyFrame,
		RecordData:        p.RecordData,
		OutputPath:        p.OutputPath,
	}
	var resp FixedHeader
	if err := c.post(ctx, startRecordPath, req, &resp); err != nil {
		return err
	}
	return errHandle(resp)
}

// StopRecording implements recorder.MediaServer.
func (c *Client) StopRecording(ctx context.Context, stream string) error {
	var resp FixedHeader
	if err := c.post(ctx, stopRecordPath, StopRecordRequest{App: c.cfg.App, Stream: stream}, &resp); err != nil {
		return err
	}
	return errHandle(resp)
}

// StartPush implements recorder.Relay.
func (c *Client) StartPush(ctx context.Context, stream string, target recorder.PushTarget) (string, error) {
	req := StartPushRequest{App: c.cfg.App, Stream: stream, URL: target.URL()}
	var resp StartPushResponse
	if err := c.post(ctx, startPushPath, req, &resp); err != nil {
		return "", err
	}
	if err := errHandle(resp.FixedHeader); err != nil {
		return "", err
	}
	if resp.Data.SessionID == "" {
		return "", fmt.Errorf("%w: no session id for %s", ErrRejected, stream)
	}
	return resp.Data.SessionID, nil
}

// StopPush implements recorder.Relay.
func (c *Client) StopPush(ctx context.Context, sessionID string) error {
	var resp FixedHeader
	if err := c.post(ctx, stopPushPath, StopPushRequest{SessionID: sessionID}, &resp); err != nil {
		return err
	}
	return errHandle(resp)
}

func (c *Client) post(ctx context.Context, path string, data, out any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Secret != "" {
		req.Header.Set(SecretHeader, c.cfg.Secret)
	}
	resp, err := c.cli.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: status %d: %w", path, resp.StatusCode, err)
	}
	return nil
}

func errHandle(h FixedHeader) error {
	if h.Code != 0 {
		return fmt.Errorf("%w: code %d: %s", ErrRejected, h.Code, h.Msg)
	}
	return nil
}
