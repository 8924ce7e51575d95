package tezos

import (
	"errors"
	"fmt"
)

var errMissingCode = errors.New("contract origination requires code")

// ChainQueryError reports a failed read of chain state.
type ChainQueryError struct {
	Query   string
	Address string
	Err     error
}

func (e *ChainQueryError) Error() string {
	if e.Address != "" {
		return fmt.Sprintf("chain query %s for %s failed: %v", e.Query, e.Address, e.Err)
	}
	return fmt.Sprintf("chain query %s failed: %v", e.Query, e.Err)
}

func (e *ChainQueryError) Unwrap() error { return e.Err }

// ForgeValidationError reports that bytes forged by a remote node do not
// describe the operations that were asked for.
type ForgeValidationError struct {
	Kind  OperationKind
	Index int
	Err   error
}

func (e *ForgeValidationError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("remote forge validation failed: %v", e.Err)
	}
	return fmt.Sprintf("remote forge validation failed for %s operation %d: %v", e.Kind, e.Index, e.Err)
}

func (e *ForgeValidationError) Unwrap() error { return e.Err }

// ResponseParseError reports a node response that could not be parsed. It
// carries the raw body and the request payload for diagnosis.
type ResponseParseError struct {
	Endpoint string
	Body     string
	Payload  string
	Err      error
}

func (e *ResponseParseError) Error() string {
	return fmt.Sprintf("could not parse %s response %q for payload %s: %v", e.Endpoint, e.Body, e.Payload, e.Err)
}

func (e *ResponseParseError) Unwrap() error { return e.Err }

// nodeResponseError is implemented by node errors that keep the response
// body, such as a non-2xx status from the RPC client.
type nodeResponseError interface {
	error
	ResponseBody() string
}

// AppliedResultError reports a preapply result with a kind outside the
// applied set. ID is set for a top-level failure, Metadata for a failing
// content entry.
type AppliedResultError struct {
	Kind     string
	ID       string
	Metadata string
}

func (e *AppliedResultError) Error() string {
	if e.Metadata != "" {
		return fmt.Sprintf("preapply reported %q content with metadata %s", e.Kind, e.Metadata)
	}
	return fmt.Sprintf("preapply reported %q result with id %q", e.Kind, e.ID)
}

// SigningError reports a signing backend failure.
type SigningError struct {
	StoreType StoreType
	Err       error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("%s signing failed: %v", e.StoreType, e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }
