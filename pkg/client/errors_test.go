package client

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorClass
	}{
		{429, ErrorClassRateLimit},
		{503, ErrorClassServer},
		{500, ErrorClassServer},
		{502, ErrorClassServer},
		{404, ErrorClassClient},
		{403, ErrorClassClient},
		{301, ErrorClassClient},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			if got := classifyStatus(tt.status); got != tt.want {
				t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.want)
			}
		})
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		class ErrorClass
		want  bool
	}{
		{ErrorClassRateLimit, true},
		{ErrorClassServer, true},
		{ErrorClassNetwork, true},
		{ErrorClassClient, false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			if got := shouldRetry(tt.class); got != tt.want {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.class, got, tt.want)
			}
		})
	}
}

func TestFetchErrorMessage(t *testing.T) {
	err := &FetchError{ID: 12, StatusCode: 404, Class: ErrorClassClient, Message: "HTTP 404"}

	want := "failed to fetch post 12: HTTP 404 (status 404)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestFetchErrorUnwrap(t *testing.T) {
	err := &FetchError{
		ID:      3,
		Class:   ErrorClassServer,
		Message: "max retries exceeded",
		Err:     fmt.Errorf("%w after 3 attempts", ErrRetryExhausted),
	}

	if !errors.Is(err, ErrRetryExhausted) {
		t.Error("errors.Is(err, ErrRetryExhausted) = false, want true")
	}
}
