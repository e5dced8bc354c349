package fetch_test

import (
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/quarryhq/quarry/internal/fetch"
)

func TestRetriableStatus(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{200, false},
		{301, false},
		{400, false},
		{401, false},
		{403, false},
		{404, false},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
	}

	for _, tt := range tests {
		if got := fetch.RetriableStatus(tt.status); got != tt.want {
			t.Errorf("RetriableStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestSuccessStatus(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{200, true},
		{201, true},
		{204, true},
		{299, true},
		{199, false},
		{301, false},
		{404, false},
		{500, false},
	}

	for _, tt := range tests {
		if got := fetch.SuccessStatus(tt.status); got != tt.want {
			t.Errorf("SuccessStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestRetriable_TemporaryTransportError(t *testing.T) {
	err := &fetch.TransportError{
		URL:       "https://example.com",
		Err:       errors.New("i/o timeout"),
		Temporary: true,
	}

	if !fetch.Retriable(err) {
		t.Error("expected temporary transport error retriable")
	}
	if !fetch.Retriable(fmt.Errorf("wrapped: %w", err)) {
		t.Error("expected wrapped temporary transport error retriable")
	}
}

func TestRetriable_PermanentTransportError(t *testing.T) {
	dnsErr := &net.DNSError{Err: "no such host", Name: "nxdomain.example", IsNotFound: true}
	err := &fetch.TransportError{
		URL:       "https://nxdomain.example",
		Err:       dnsErr,
		Temporary: false,
	}

	if fetch.Retriable(err) {
		t.Error("expected DNS not-found error not retriable")
	}
}

func TestRetriable_NonTransportError(t *testing.T) {
	if fetch.Retriable(errors.New("something else")) {
		t.Error("expected plain error not retriable")
	}
}

func TestTransportError_Unwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := &fetch.TransportError{URL: "https://example.com", Err: inner, Temporary: true}

	if !errors.Is(err, inner) {
		t.Error("expected TransportError to unwrap to inner error")
	}
	if err.Error() == "" {
		t.Error("expected non-empty error string")
	}
}
