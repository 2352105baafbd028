package client

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeNetwork indicates a network-level error
	ErrTypeNetwork ErrorType = iota
	// ErrTypeAuth indicates a missing or unknown API key
	ErrTypeAuth
	// ErrTypeForbidden indicates a key without admin rights
	ErrTypeForbidden
	// ErrTypeHTTP indicates any other non-2xx status code
	ErrTypeHTTP
	// ErrTypeParse indicates a malformed response body
	ErrTypeParse
	// ErrTypeTimeout indicates a request timeout
	ErrTypeTimeout
	// ErrTypeConnectionRefused indicates nothing listens on the port
	ErrTypeConnectionRefused
	// ErrTypeDNS indicates a DNS resolution failure
	ErrTypeDNS
)

// NetworkErrorSubtype provides more specific network error classification
type NetworkErrorSubtype int

const (
	NetworkErrorGeneral NetworkErrorSubtype = iota
	NetworkErrorTimeout
	NetworkErrorConnectionRefused
	NetworkErrorDNS
	NetworkErrorHostUnreachable
	NetworkErrorNetworkUnreachable
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeAuth:
		return "Authentication Error"
	case ErrTypeForbidden:
		return "Permission Error"
	case ErrTypeHTTP:
		return "HTTP Error"
	case ErrTypeParse:
		return "Parse Error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeConnectionRefused:
		return "Connection Refused"
	case ErrTypeDNS:
		return "DNS Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// APIError represents a failed settings API call
type APIError struct {
	Type           ErrorType
	Message        string
	StatusCode     int // HTTP status code (if applicable)
	Body           string
	Err            error
	NetworkSubtype NetworkErrorSubtype
	Host           string
	Retryable      bool
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *APIError) Unwrap() error {
	return e.Err
}

// ClassifyNetworkError analyzes a transport error and returns a more
// specific error type
func ClassifyNetworkError(err error, host string) *APIError {
	if err == nil {
		return nil
	}

	if os.IsTimeout(err) {
		return &APIError{
			Type:           ErrTypeTimeout,
			Message:        "Request timed out",
			Err:            err,
			NetworkSubtype: NetworkErrorTimeout,
			Host:           host,
			Retryable:      true,
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &APIError{
			Type:           ErrTypeDNS,
			Message:        fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name),
			Err:            err,
			NetworkSubtype: NetworkErrorDNS,
			Host:           host,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED):
			return &APIError{
				Type:           ErrTypeConnectionRefused,
				Message:        "Server refused connection",
				Err:            err,
				NetworkSubtype: NetworkErrorConnectionRefused,
				Host:           host,
				Retryable:      true,
			}
		case errors.Is(opErr.Err, syscall.EHOSTUNREACH):
			return &APIError{
				Type:           ErrTypeNetwork,
				Message:        "Host unreachable",
				Err:            err,
				NetworkSubtype: NetworkErrorHostUnreachable,
				Host:           host,
				Retryable:      true,
			}
		case errors.Is(opErr.Err, syscall.ENETUNREACH):
			return &APIError{
				Type:           ErrTypeNetwork,
				Message:        "Network unreachable",
				Err:            err,
				NetworkSubtype: NetworkErrorNetworkUnreachable,
				Host:           host,
				Retryable:      true,
			}
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != err {
		return ClassifyNetworkError(urlErr.Err, host)
	}

	return &APIError{
		Type:           ErrTypeNetwork,
		Message:        "Network error occurred",
		Err:            err,
		NetworkSubtype: NetworkErrorGeneral,
		Host:           host,
		Retryable:      true,
	}
}

// NewNetworkError creates a network-level error with automatic classification
func NewNetworkError(message, host string, err error) *APIError {
	classified := ClassifyNetworkError(err, host)
	if classified == nil {
		return &APIError{Type: ErrTypeNetwork, Message: message, Host: host, Retryable: true}
	}
	classified.Message = message
	return classified
}

// NewStatusError maps an unexpected HTTP status to an error. body is the
// trimmed response text.
func NewStatusError(statusCode int, body string) *APIError {
	e := &APIError{
		Type:       ErrTypeHTTP,
		Message:    fmt.Sprintf("unexpected status %d", statusCode),
		StatusCode: statusCode,
		Body:       body,
		Retryable:  statusCode >= 500,
	}
	switch statusCode {
	case http.StatusUnauthorized:
		e.Type = ErrTypeAuth
		e.Message = "API key missing or unknown"
	case http.StatusForbidden:
		e.Type = ErrTypeForbidden
		e.Message = "API key lacks admin rights"
	}
	if body != "" {
		e.Message += ": " + body
	}
	return e
}

// NewParseError creates a parsing error
func NewParseError(message string, err error) *APIError {
	return &APIError{
		Type:    ErrTypeParse,
		Message: message,
		Err:     err,
	}
}

func errorType(err error) (ErrorType, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Type, true
	}
	return 0, false
}

// IsNetworkError checks if an error is a network error (including timeout, connection refused and DNS)
func IsNetworkError(err error) bool {
	t, ok := errorType(err)
	return ok && (t == ErrTypeNetwork || t == ErrTypeTimeout || t == ErrTypeConnectionRefused || t == ErrTypeDNS)
}

// IsAuthError checks if the server rejected the API key
func IsAuthError(err error) bool {
	t, ok := errorType(err)
	return ok && (t == ErrTypeAuth || t == ErrTypeForbidden)
}

// IsRetryable checks if an error should be retried
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable
	}
	return false
}

// GetTroubleshootingHint returns user-friendly troubleshooting advice for an error
func GetTroubleshootingHint(err error) string {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return "An unexpected error occurred. Please try again."
	}

	switch apiErr.Type {
	case ErrTypeTimeout:
		return strings.Join([]string{
			"The server did not respond in time.",
			"Troubleshooting:",
			"  • Check that printhost-server is running",
			"  • Try increasing the timeout with --timeout",
		}, "\n")

	case ErrTypeConnectionRefused:
		return strings.Join([]string{
			"The server refused the connection.",
			"Troubleshooting:",
			"  • Check that printhost-server is running",
			"  • Verify the port number (default is 5000)",
			"  • Run 'printhost-cfg scan' to find servers on the network",
		}, "\n")

	case ErrTypeDNS:
		return strings.Join([]string{
			"Could not resolve the server hostname.",
			"Troubleshooting:",
			"  • Use the IP address instead of hostname",
			"  • Run 'printhost-cfg scan' to find servers on the network",
		}, "\n")

	case ErrTypeAuth:
		return strings.Join([]string{
			"The server did not accept the API key.",
			"Troubleshooting:",
			"  • Pass the key with --api-key or PRINTHOST_API_KEY",
			"  • The server prints its key on first start and stores it as api.key",
		}, "\n")

	case ErrTypeForbidden:
		return "The API key belongs to a user. Changing settings requires the admin key (api.key)."

	case ErrTypeNetwork:
		hint := []string{"Network communication failed."}
		switch apiErr.NetworkSubtype {
		case NetworkErrorHostUnreachable:
			hint = append(hint,
				"Troubleshooting:",
				"  • Verify the server address is correct",
				"  • Try pinging the server: ping "+apiErr.Host)
		case NetworkErrorNetworkUnreachable:
			hint = append(hint,
				"Troubleshooting:",
				"  • Check your network adapter settings")
		default:
			hint = append(hint,
				"Troubleshooting:",
				"  • Check your network connection")
		}
		return strings.Join(hint, "\n")

	case ErrTypeHTTP:
		if apiErr.StatusCode >= 500 {
			return strings.Join([]string{
				fmt.Sprintf("The server returned an error (HTTP %d).", apiErr.StatusCode),
				"Troubleshooting:",
				"  • Check the server log",
				"  • Make sure the settings file is writable",
			}, "\n")
		}
		return fmt.Sprintf("The server returned HTTP error %d. Check the request parameters.", apiErr.StatusCode)

	case ErrTypeParse:
		return "Failed to parse the server's response. Is the URL pointing at a printhost server?"

	default:
		return "An error occurred. Please check the error message for details."
	}
}
