package testutil

import (
	"io"
	"net/http"
	"testing"
)

func TestAssertStatusCode(t *testing.T) {
	AssertStatusCode(t, http.StatusOK, http.StatusOK)
}

func TestAssertNoError(t *testing.T) {
	AssertNoError(t, nil)
}

func TestAssertError(t *testing.T) {
	AssertError(t, io.EOF)
}

func TestNewTestRequest(t *testing.T) {
	req := NewTestRequest(http.MethodPost, "/api/tracker/start")
	if req.Method != http.MethodPost || req.URL.Path != "/api/tracker/start" {
		t.Errorf("got %s %s", req.Method, req.URL.Path)
	}
	if req.RemoteAddr != "127.0.0.1:1234" {
		t.Errorf("RemoteAddr = %q", req.RemoteAddr)
	}
}

func TestNewJSONRequest(t *testing.T) {
	req := NewJSONRequest(t, http.MethodPut, "/x", map[string]int{"active_window_seconds": 30})
	body, err := io.ReadAll(req.Body)
	AssertNoError(t, err)
	if string(body) != `{"active_window_seconds":30}` {
		t.Errorf("body = %s", body)
	}
	if ct := req.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	raw := NewJSONRequest(t, http.MethodPut, "/x", `{"a":`)
	body, _ = io.ReadAll(raw.Body)
	if string(body) != `{"a":` {
		t.Errorf("raw body = %s", body)
	}
}

func TestDecodeBody(t *testing.T) {
	rec := NewTestRecorder()
	rec.WriteString(`{"phase":"active"}`)
	got := DecodeBody[map[string]string](t, rec)
	if got["phase"] != "active" {
		t.Errorf("phase = %q", got["phase"])
	}
}
