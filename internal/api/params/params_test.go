package params

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castlane/timeline/internal/errs"
)

type sample struct {
	PostID int64  `json:"post_id"`
	Cursor string `json:"cursor"`
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    sample
		wantErr bool
	}{
		{"object", `{"post_id": 7, "cursor": "abc"}`, sample{PostID: 7, Cursor: "abc"}, false},
		{"empty", ``, sample{}, false},
		{"null", `null`, sample{}, false},
		{"positional", `[7]`, sample{}, true},
		{"unknown field", `{"post": 7}`, sample{}, true},
		{"wrong type", `{"post_id": "seven"}`, sample{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got sample
			err := Decode(json.RawMessage(tt.raw), &got)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errs.Is(err, errs.InvalidArgument))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequireID(t *testing.T) {
	assert.NoError(t, RequireID("post_id", 1))
	assert.True(t, errs.Is(RequireID("post_id", 0), errs.InvalidArgument))
}
