package client

import (
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"testing"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassifyNetworkError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		wantSub   NetworkErrorSubtype
		retryable bool
	}{
		{
			name:      "timeout",
			err:       &url.Error{Op: "Get", URL: "http://octopi:5000", Err: &net.OpError{Op: "dial", Net: "tcp", Err: timeoutError{}}},
			wantType:  ErrTypeTimeout,
			wantSub:   NetworkErrorTimeout,
			retryable: true,
		},
		{
			name:      "connection refused",
			err:       &url.Error{Op: "Get", URL: "http://octopi:5000", Err: &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}},
			wantType:  ErrTypeConnectionRefused,
			wantSub:   NetworkErrorConnectionRefused,
			retryable: true,
		},
		{
			name:     "dns",
			err:      &net.DNSError{Err: "no such host", Name: "octopi.local", IsNotFound: true},
			wantType: ErrTypeDNS,
			wantSub:  NetworkErrorDNS,
		},
		{
			name:      "host unreachable",
			err:       &net.OpError{Op: "dial", Net: "tcp", Err: syscall.EHOSTUNREACH},
			wantType:  ErrTypeNetwork,
			wantSub:   NetworkErrorHostUnreachable,
			retryable: true,
		},
		{
			name:      "generic",
			err:       errors.New("connection reset"),
			wantType:  ErrTypeNetwork,
			wantSub:   NetworkErrorGeneral,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := ClassifyNetworkError(tt.err, "octopi")
			if apiErr == nil {
				t.Fatal("ClassifyNetworkError() = nil")
			}
			if apiErr.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", apiErr.Type, tt.wantType)
			}
			if apiErr.NetworkSubtype != tt.wantSub {
				t.Errorf("NetworkSubtype = %v, want %v", apiErr.NetworkSubtype, tt.wantSub)
			}
			if apiErr.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", apiErr.Retryable, tt.retryable)
			}
			if apiErr.Host != "octopi" {
				t.Errorf("Host = %q, want octopi", apiErr.Host)
			}
		})
	}

	if ClassifyNetworkError(nil, "octopi") != nil {
		t.Error("ClassifyNetworkError(nil) should be nil")
	}
}

func TestNewStatusError(t *testing.T) {
	tests := []struct {
		status    int
		wantType  ErrorType
		retryable bool
	}{
		{http.StatusUnauthorized, ErrTypeAuth, false},
		{http.StatusForbidden, ErrTypeForbidden, false},
		{http.StatusBadRequest, ErrTypeHTTP, false},
		{http.StatusInternalServerError, ErrTypeHTTP, true},
		{http.StatusBadGateway, ErrTypeHTTP, true},
	}
	for _, tt := range tests {
		err := NewStatusError(tt.status, "")
		if err.Type != tt.wantType || err.Retryable != tt.retryable {
			t.Errorf("NewStatusError(%d) = %v retryable=%v, want %v retryable=%v",
				tt.status, err.Type, err.Retryable, tt.wantType, tt.retryable)
		}
	}

	err := NewStatusError(http.StatusBadRequest, "Malformed JSON body in request")
	if !strings.Contains(err.Error(), "Malformed JSON body") {
		t.Errorf("Error() = %q, want server message", err.Error())
	}
}

func TestErrorPredicates(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), NewStatusError(http.StatusForbidden, ""))
	if !IsAuthError(wrapped) {
		t.Error("IsAuthError() should see through wrapping")
	}
	if IsNetworkError(wrapped) {
		t.Error("IsNetworkError() = true for a status error")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("plain errors are not retryable")
	}

	cause := errors.New("eof")
	parseErr := NewParseError("bad body", cause)
	if !errors.Is(parseErr, cause) {
		t.Error("NewParseError() should unwrap to its cause")
	}
}

func TestGetTroubleshootingHint(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{NewStatusError(http.StatusUnauthorized, ""), "--api-key"},
		{NewStatusError(http.StatusForbidden, ""), "admin key"},
		{NewStatusError(http.StatusInternalServerError, ""), "server log"},
		{ClassifyNetworkError(&net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, "octopi"), "printhost-cfg scan"},
		{ClassifyNetworkError(&net.OpError{Op: "dial", Err: syscall.EHOSTUNREACH}, "octopi"), "ping octopi"},
		{errors.New("boom"), "unexpected"},
	}
	for _, tt := range tests {
		if hint := GetTroubleshootingHint(tt.err); !strings.Contains(hint, tt.want) {
			t.Errorf("GetTroubleshootingHint(%v) = %q, want it to mention %q", tt.err, hint, tt.want)
		}
	}
}
