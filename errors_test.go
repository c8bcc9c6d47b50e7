package conduit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestErrProviderError(t *testing.T) {
	tests := []struct {
		provider string
		message  string
		want     string
	}{
		{"openai", "rate limited", "openai: rate limited"},
		{"anthropic", "context length exceeded", "anthropic: context length exceeded"},
	}
	for _, tt := range tests {
		e := &ErrProvider{Provider: tt.provider, Message: tt.message}
		if got := e.Error(); got != tt.want {
			t.Errorf("ErrProvider{%q, %q}.Error() = %q, want %q", tt.provider, tt.message, got, tt.want)
		}
	}
}

func TestErrHTTPError(t *testing.T) {
	e := &ErrHTTP{Status: 429, Body: "too many requests"}
	if got := e.Error(); got != "http 429: too many requests" {
		t.Errorf("Error() = %q", got)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"30", 30 * time.Second},
		{"0", 0},
		{"-5", 0},
		{"not a number", 0},
	}
	for _, tt := range tests {
		if got := ParseRetryAfter(tt.in); got != tt.want {
			t.Errorf("ParseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestToolErrorMessage(t *testing.T) {
	e := &ToolError{Kind: ToolErrorNetwork, Tool: "search", Message: "connection refused"}
	if got := e.Error(); got != "tool search: network: connection refused" {
		t.Errorf("Error() = %q", got)
	}
	e = &ToolError{Kind: ToolErrorValidation, Message: "bad args"}
	if got := e.Error(); got != "validation: bad args" {
		t.Errorf("Error() = %q", got)
	}
}

func TestToolErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	e := NetworkError(cause)
	if !errors.Is(e, cause) {
		t.Error("expected Unwrap to expose the cause")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ToolErrorKind
	}{
		{"validation", ValidationError("bad"), ToolErrorValidation},
		{"network", NetworkError(errors.New("down")), ToolErrorNetwork},
		{"parse", ParseError(errors.New("garbled")), ToolErrorParse},
		{"timeout", TimeoutError("too slow"), ToolErrorTimeout},
		{"wrapped tool error", fmt.Errorf("outer: %w", ValidationError("bad")), ToolErrorValidation},
		{"deadline exceeded", context.DeadlineExceeded, ToolErrorTimeout},
		{"plain error", errors.New("whatever"), ToolErrorUnexpected},
		{"nil", nil, ToolErrorUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestToolErrorKindString(t *testing.T) {
	kinds := map[ToolErrorKind]string{
		ToolErrorUnexpected: "unexpected",
		ToolErrorValidation: "validation",
		ToolErrorNetwork:    "network",
		ToolErrorParse:      "parse",
		ToolErrorTimeout:    "timeout",
	}
	for k, want := range kinds {
		if got := k.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
