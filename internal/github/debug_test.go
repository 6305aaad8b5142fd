package github

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gemini-community/docs-mirror/internal/logging"
)

func TestLoggingTransport(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "pong")
	}))
	defer ts.Close()

	var buf bytes.Buffer
	log := logging.NewLogger(logging.Config{Level: logging.LevelDebug, Format: "json", Output: &buf})
	client := &http.Client{Transport: NewLoggingTransport(nil, log)}

	resp, err := client.Get(ts.URL + "/ping")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	resp.Body.Close()

	out := buf.String()
	if !strings.Contains(out, "GET /ping") {
		t.Fatalf("expected request dump in debug log, got %q", out)
	}
	if !strings.Contains(out, "200 OK") || !strings.Contains(out, "pong") {
		t.Fatalf("expected response dump in debug log, got %q", out)
	}
}

func TestLoggingTransportSuppressedBelowDebug(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "pong")
	}))
	defer ts.Close()

	var buf bytes.Buffer
	log := logging.NewLogger(logging.Config{Level: logging.LevelInfo, Format: "json", Output: &buf})
	client := &http.Client{Transport: NewLoggingTransport(nil, log)}

	resp, err := client.Get(ts.URL)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	resp.Body.Close()

	if buf.Len() != 0 {
		t.Fatalf("expected no output at info level, got %q", buf.String())
	}
}
