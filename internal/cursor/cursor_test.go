package cursor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castlane/timeline/internal/errs"
)

func TestRoundTrip(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 45, 123456789, time.UTC)
	c := New(ts, 42)

	decoded, err := Decode(c.Encode())
	require.NoError(t, err)
	assert.Equal(t, int64(42), decoded.ID)
	assert.True(t, decoded.CreatedAt.Equal(ts.Truncate(time.Microsecond)))
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantNil bool
		wantErr bool
	}{
		{"empty means start", "", true, false},
		{"not base64", "%%%", true, true},
		{"not json", "bm90LWpzb24", true, true},
		{"missing id", "eyJ0IjoxfQ", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Decode(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errs.InvalidArgument, errs.KindOf(err))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantNil, c == nil)
		})
	}
}

func TestBeforeUsesIDTieBreak(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(ts, 10)

	assert.True(t, c.Before(ts, 9))
	assert.False(t, c.Before(ts, 10))
	assert.False(t, c.Before(ts, 11))
	assert.True(t, c.Before(ts.Add(-time.Second), 99))
	assert.False(t, c.Before(ts.Add(time.Second), 1))

	assert.True(t, c.After(ts, 11))
	assert.False(t, c.After(ts, 10))

	var none *Cursor
	assert.True(t, none.Before(ts, 1))
	assert.Equal(t, "", none.Encode())
}

func TestLimitAndTrim(t *testing.T) {
	assert.Equal(t, 20, Limit(0, 20, 100))
	assert.Equal(t, 100, Limit(500, 20, 100))
	assert.Equal(t, 5, Limit(5, 20, 100))

	rows, more := Trim([]int{1, 2, 3}, 2)
	assert.Equal(t, []int{1, 2}, rows)
	assert.True(t, more)

	rows, more = Trim([]int{1, 2}, 2)
	assert.Len(t, rows, 2)
	assert.False(t, more)
}
