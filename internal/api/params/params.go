// Package params decodes named JSON-RPC parameters.
package params

import (
	"bytes"
	"encoding/json"

	"github.com/castlane/timeline/internal/errs"
)

// Decode unmarshals a params object into dst. Absent or null params leave dst zeroed.
func Decode(raw json.RawMessage, dst interface{}) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] != '{' {
		return errs.InvalidArgumentf("params must be an object")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errs.InvalidArgumentf("invalid params: %v", err)
	}
	return nil
}

// RequireID rejects a missing or non-positive id parameter
func RequireID(name string, id int64) error {
	if id <= 0 {
		return errs.InvalidArgumentf("%s is required", name)
	}
	return nil
}
