package api

import (
	"github.com/castlane/timeline/internal/errs"
)

// Standard JSON-RPC error codes
const (
	ErrParseError     = -32700
	ErrInvalidRequest = -32600
	ErrMethodNotFound = -32601
	ErrInvalidParams  = -32602
	ErrInternalError  = -32603
)

// Engine error codes, in the implementation-defined server error range
const (
	ErrUnauthenticated  = -32001
	ErrPermissionDenied = -32003
	ErrNotFound         = -32004
	ErrBlocked          = -32009
	ErrRateLimited      = -32029
)

// ErrorCode maps an engine error to its JSON-RPC code
func ErrorCode(err error) int {
	switch errs.KindOf(err) {
	case errs.NotFound:
		return ErrNotFound
	case errs.InvalidArgument:
		return ErrInvalidParams
	case errs.Blocked:
		return ErrBlocked
	case errs.Unauthenticated:
		return ErrUnauthenticated
	case errs.PermissionDenied:
		return ErrPermissionDenied
	default:
		return ErrInternalError
	}
}
