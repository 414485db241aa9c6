// Package rpcerr defines the error taxonomy the RPC facade surfaces,
// mirroring internal/api/errors.APIError's Code+builder shape.
package rpcerr

import "fmt"

// Kind classifies an RPC facade failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindFieldMissing
	KindUnknownGroup
	KindDecodeRequest
	KindEncodeResponse
	KindStorePoolUnavailable
	KindStoreOp
	KindLockBusy
	KindSerialize
	KindOutboundRPC
	KindParseSemver
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindFieldMissing:
		return "field_missing"
	case KindUnknownGroup:
		return "unknown_group"
	case KindDecodeRequest:
		return "decode_request"
	case KindEncodeResponse:
		return "encode_response"
	case KindStorePoolUnavailable:
		return "store_pool_unavailable"
	case KindStoreOp:
		return "store_op"
	case KindLockBusy:
		return "lock_busy"
	case KindSerialize:
		return "serialize"
	case KindOutboundRPC:
		return "outbound_rpc"
	case KindParseSemver:
		return "parse_semver"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a facade-level failure: what operation failed, how it's
// classified, and (optionally) the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an Error with no wrapped cause.
func New(kind Kind, op string) *Error {
	return &Error{Kind: kind, Op: op}
}

// Wrap builds an Error around an existing cause.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
