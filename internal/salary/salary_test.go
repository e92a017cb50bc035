package salary

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Range
	}{
		{
			name: "dollar range with hyphen",
			raw:  "$115,000 - $140,000",
			want: Range{Min: ptr(115000.0), Max: ptr(140000.0), Currency: ptr("$")},
		},
		{
			name: "single pound amount",
			raw:  "£50,000",
			want: Range{Min: ptr(50000.0), Currency: ptr("£")},
		},
		{
			name: "empty",
			raw:  "",
			want: Range{},
		},
		{
			name: "no amount",
			raw:  "Competitive",
			want: Range{},
		},
		{
			name: "en dash without second symbol",
			raw:  "€40000–€55000 per year",
			want: Range{Min: ptr(40000.0), Max: ptr(55000.0), Currency: ptr("€")},
		},
		{
			name: "to separator",
			raw:  "$100 to $200",
			want: Range{Min: ptr(100.0), Max: ptr(200.0), Currency: ptr("$")},
		},
		{
			name: "reversed bounds are ordered",
			raw:  "$140,000 - $115,000",
			want: Range{Min: ptr(115000.0), Max: ptr(140000.0), Currency: ptr("$")},
		},
		{
			name: "single amount with cents",
			raw:  "Up to $45.50 an hour",
			want: Range{Min: ptr(45.5), Currency: ptr("$")},
		},
		{
			name: "number without symbol",
			raw:  "120000",
			want: Range{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.raw))
		})
	}
}

func TestParseOverflowDegrades(t *testing.T) {
	huge := "$" + strings.Repeat("9", 400) + " - $2"
	assert.True(t, Parse(huge).Empty())
}

func TestRangeEmpty(t *testing.T) {
	assert.True(t, Range{}.Empty())
	assert.False(t, Parse("$10").Empty())
}
