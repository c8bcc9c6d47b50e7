package conduit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrProvider reports a failure inside a provider client that is not an
// HTTP-level error (marshal, decode, request construction).
type ErrProvider struct {
	Provider string
	Message  string
}

func (e *ErrProvider) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ErrHTTP reports a non-2xx response from an upstream AI provider. The raw
// status and body are kept for diagnostics; RetryAfter carries the parsed
// Retry-After header when the upstream sent one.
type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ParseRetryAfter parses a Retry-After header value (delay seconds form).
// Returns 0 for empty or unparseable values.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// ErrAuth reports a missing or invalid API key on the agent path.
type ErrAuth struct {
	Code    string // e.g. "MISSING_API_KEY"
	Message string
}

func (e *ErrAuth) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ToolErrorKind classifies a tool execution failure. The MCP handler maps
// each kind to its JSON-RPC error code.
type ToolErrorKind int

const (
	// ToolErrorUnexpected is any failure not covered by a specific kind.
	ToolErrorUnexpected ToolErrorKind = iota
	// ToolErrorValidation means the tool rejected its arguments.
	ToolErrorValidation
	// ToolErrorNetwork means a backing API call failed.
	ToolErrorNetwork
	// ToolErrorParse means a backing API returned a malformed response.
	ToolErrorParse
	// ToolErrorTimeout means the tool exceeded its time budget.
	ToolErrorTimeout
)

// String returns the kind name.
func (k ToolErrorKind) String() string {
	switch k {
	case ToolErrorValidation:
		return "validation"
	case ToolErrorNetwork:
		return "network"
	case ToolErrorParse:
		return "parse"
	case ToolErrorTimeout:
		return "timeout"
	default:
		return "unexpected"
	}
}

// ToolError is a classified tool execution failure. Tool handlers return
// these so callers can map failures without string matching.
type ToolError struct {
	Kind    ToolErrorKind
	Tool    string
	Message string
	Err     error // optional underlying cause
}

func (e *ToolError) Error() string {
	if e.Tool != "" {
		return fmt.Sprintf("tool %s: %s: %s", e.Tool, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ToolError) Unwrap() error { return e.Err }

// ValidationError returns a ToolError of kind validation.
func ValidationError(format string, args ...any) *ToolError {
	return &ToolError{Kind: ToolErrorValidation, Message: fmt.Sprintf(format, args...)}
}

// NetworkError returns a ToolError of kind network wrapping err.
func NetworkError(err error) *ToolError {
	return &ToolError{Kind: ToolErrorNetwork, Message: err.Error(), Err: err}
}

// ParseError returns a ToolError of kind parse wrapping err.
func ParseError(err error) *ToolError {
	return &ToolError{Kind: ToolErrorParse, Message: err.Error(), Err: err}
}

// TimeoutError returns a ToolError of kind timeout.
func TimeoutError(format string, args ...any) *ToolError {
	return &ToolError{Kind: ToolErrorTimeout, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ToolErrorKind from err. Context deadline errors and
// net timeouts classify as timeout; everything unclassified is unexpected.
func KindOf(err error) ToolErrorKind {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ToolErrorTimeout
	}
	var nerr interface{ Timeout() bool }
	if errors.As(err, &nerr) && nerr.Timeout() {
		return ToolErrorTimeout
	}
	return ToolErrorUnexpected
}

// ErrUnknownTool is returned by ToolRegistry.Execute when no tool with the
// requested name is registered. Callers map it to method-not-found.
var ErrUnknownTool = errors.New("unknown tool")
