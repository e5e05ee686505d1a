package headers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediasniff/pkg/model"
)

func TestNormalize_LastWinsAndRangeDropped(t *testing.T) {
	in := []model.HeaderEntry{
		{Name: "Range", Value: "bytes=0-1"},
		{Name: "Cookie", Value: "a=1"},
		{Name: "cookie", Value: "a=2"},
	}

	got := Normalize(in)

	assert.Equal(t, []model.HeaderEntry{{Name: "cookie", Value: "a=2"}}, got)
}

func TestNormalize_FirstInsertionOrder(t *testing.T) {
	in := []model.HeaderEntry{
		{Name: "Accept", Value: "*/*"},
		{Name: "User-Agent", Value: "ua1"},
		{Name: "Referer", Value: "https://x"},
		{Name: "user-agent", Value: "ua2"},
		{Name: "", Value: "kept"},
	}

	got := Normalize(in)

	require.Len(t, got, 4)
	assert.Equal(t, "accept", got[0].Name)
	assert.Equal(t, model.HeaderEntry{Name: "user-agent", Value: "ua2"}, got[1])
	assert.Equal(t, "referer", got[2].Name)
	assert.Equal(t, model.HeaderEntry{Name: "", Value: "kept"}, got[3])
}

func TestNormalize_NeverDuplicates(t *testing.T) {
	in := []model.HeaderEntry{
		{Name: "X-A", Value: "1"}, {Name: "x-a", Value: "2"}, {Name: "X-a", Value: "3"},
		{Name: "RANGE", Value: "bytes=1-"}, {Name: "x-b", Value: ""},
	}

	got := Normalize(in)

	seen := map[string]bool{}
	for _, h := range got {
		assert.False(t, seen[h.Name], "duplicate %s", h.Name)
		assert.NotEqual(t, Range, h.Name)
		seen[h.Name] = true
	}
	assert.Equal(t, []model.HeaderEntry{{Name: "x-a", Value: "3"}, {Name: "x-b", Value: ""}}, got)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []model.HeaderEntry
	}{
		{
			name: "array form",
			raw:  `[{"name":"Range","value":"bytes=0-1"},{"name":"Cookie","value":"a=1"},{"name":"cookie","value":"a=2"}]`,
			want: []model.HeaderEntry{{Name: "cookie", Value: "a=2"}},
		},
		{
			name: "malformed entries skipped",
			raw:  `[null, 3, {"name": 5, "value": "x"}, {"value": "y"}, {"name": "Accept"}, {"name": "X", "value": 7}]`,
			want: []model.HeaderEntry{{Name: "accept", Value: ""}, {Name: "x", Value: ""}},
		},
		{
			name: "empty name is still a string",
			raw:  `[{"name":"","value":"e"},{"name":"Accept","value":"*/*"}]`,
			want: []model.HeaderEntry{{Name: "", Value: "e"}, {Name: "accept", Value: "*/*"}},
		},
		{
			name: "object form keeps key order",
			raw:  `{"User-Agent":"ua","Accept":"*/*","Range":"bytes=0-"}`,
			want: []model.HeaderEntry{{Name: "user-agent", Value: "ua"}, {Name: "accept", Value: "*/*"}},
		},
		{name: "not a sequence", raw: `"hello"`, want: []model.HeaderEntry{}},
		{name: "invalid json", raw: `[{"name":`, want: []model.HeaderEntry{}},
		{name: "empty", raw: ``, want: []model.HeaderEntry{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse([]byte(tt.raw)))
		})
	}
}

func TestLines(t *testing.T) {
	got := Lines([]model.HeaderEntry{{Name: "cookie", Value: "a=1"}, {Name: "x", Value: ""}})

	assert.Equal(t, []string{"cookie: a=1", "x: "}, got)
}
