package github

import (
	"net/http"
	"net/http/httputil"

	"github.com/gemini-community/docs-mirror/internal/logging"
)

// LoggingTransport is an http.RoundTripper that logs requests and responses.
type LoggingTransport struct {
	Transport http.RoundTripper
	Log       *logging.Logger
}

// NewLoggingTransport creates a new LoggingTransport. If transport is nil,
// http.DefaultTransport is used.
func NewLoggingTransport(transport http.RoundTripper, log *logging.Logger) *LoggingTransport {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &LoggingTransport{
		Transport: transport,
		Log:       log,
	}
}

// RoundTrip executes a single HTTP transaction, logging the request and response.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	reqDump, err := httputil.DumpRequestOut(req, true)
	if err != nil {
		t.Log.Debugf("error dumping request: %v", err)
	} else {
		t.Log.Debugf("request:\n%s", reqDump)
	}

	resp, err := t.Transport.RoundTrip(req)
	if err != nil {
		t.Log.Debugf("error making request: %v", err)
		return resp, err // Return the response and error, even if the response is nil.
	}

	respDump, err := httputil.DumpResponse(resp, true)
	if err != nil {
		t.Log.Debugf("error dumping response: %v", err)
	} else {
		t.Log.Debugf("response:\n%s", respDump)
	}

	return resp, nil
}
