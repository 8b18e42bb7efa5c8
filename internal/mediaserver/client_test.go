package mediaserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"segment-recorder/internal/recorder"
)

type captured struct {
	path   string
	secret string
	body   map[string]any
}

func newMediaServer(t *testing.T, reply string, got *captured) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.secret = r.Header.Get(SecretHeader)
		if err := json.NewDecoder(r.Body).Decode(&got.body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_StartRecording(t *testing.T) {
	var got captured
	srv := newMediaServer(t, `{"code":0,"msg":"success"}`, &got)
	c := NewClient(Config{URL: srv.URL, Secret: "s3cret", App: "live"})

	params := recorder.NewRecordParams(recorder.Policy{SegmentLimitMinutes: 10}, "/content")
	if err := c.StartRecording(context.Background(), "cam1", params); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}

	if got.path != startRecordPath || got.secret != "s3cret" {
		t.Errorf("path=%q secret=%q", got.path, got.secret)
	}
	want := map[string]any{
		"app":                 "live",
		"stream":              "cam1",
		"format":              "mp4",
		"segmentation":        "duration",
		"segment_duration_ms": float64(600000),
		"start_on_key_frame":  true,
		"record_data":         true,
		"output_path":         "/content",
	}
	for k, v := range want {
		if got.body[k] != v {
			t.Errorf("%s = %v, want %v", k, got.body[k], v)
		}
	}
}

func TestClient_StopRecording(t *testing.T) {
	var got captured
	srv := newMediaServer(t, `{"code":0}`, &got)
	c := NewClient(Config{URL: srv.URL, App: "live"})

	if err := c.StopRecording(context.Background(), "cam1"); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	if got.path != stopRecordPath || got.body["stream"] != "cam1" || got.body["app"] != "live" {
		t.Errorf("unexpected request %+v", got)
	}
	if got.secret != "" {
		t.Error("no secret header expected without a secret")
	}
}

func TestClient_rejected(t *testing.T) {
	var got captured
	srv := newMediaServer(t, `{"code":-1,"msg":"stream not found"}`, &got)
	c := NewClient(Config{URL: srv.URL, Timeout: time.Second})

	err := c.StopRecording(context.Background(), "cam1")
	if !errors.Is(err, ErrRejected) {
		t.Errorf("expected ErrRejected, got %v", err)
	}
}

func TestClient_unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(Config{URL: url, Timeout: time.Second})
	if err := c.StartRecording(context.Background(), "cam1", recorder.RecordParams{}); err == nil {
		t.Error("expected error")
	}
}

func TestClient_StartPush(t *testing.T) {
	var got captured
	srv := newMediaServer(t, `{"code":0,"msg":"success","data":{"stream_name":"cam1","session_id":"PUSH-7"}}`, &got)
	c := NewClient(Config{URL: srv.URL, Secret: "s3cret", App: "record"})

	target := recorder.PushTarget{Host: "relay.local:1935", App: "live", Stream: "cam1"}
	id, err := c.StartPush(context.Background(), "cam1", target)
	if err != nil {
		t.Fatalf("StartPush: %v", err)
	}
	if id != "PUSH-7" {
		t.Errorf("session id = %q", id)
	}
	if got.path != startPushPath || got.secret != "s3cret" {
		t.Errorf("path=%q secret=%q", got.path, got.secret)
	}
	if got.body["app"] != "record" || got.body["stream"] != "cam1" || got.body["url"] != "rtmp://relay.local:1935/live/cam1" {
		t.Errorf("unexpected body %v", got.body)
	}
}

func TestClient_StartPush_rejected(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"error code", `{"code":1201,"msg":"start relay push fail"}`},
		{"no session", `{"code":0,"msg":"success","data":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got captured
			srv := newMediaServer(t, tt.reply, &got)
			c := NewClient(Config{URL: srv.URL})

			_, err := c.StartPush(context.Background(), "cam1", recorder.PushTarget{Host: "h", App: "live", Stream: "cam1"})
			if !errors.Is(err, ErrRejected) {
				t.Errorf("expected ErrRejected, got %v", err)
			}
		})
	}
}

func TestClient_StopPush(t *testing.T) {
	var got captured
	srv := newMediaServer(t, `{"code":0,"msg":"success"}`, &got)
	c := NewClient(Config{URL: srv.URL})

	if err := c.StopPush(context.Background(), "PUSH-7"); err != nil {
		t.Fatalf("StopPush: %v", err)
	}
	if got.path != stopPushPath || got.body["session_id"] != "PUSH-7" {
		t.Errorf("unexpected request %+v", got)
	}
}
