package extract

import (
	"testing"

	"github.com/use-agent/npiharvest/models"
)

func TestParseAddress(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want models.Address
	}{
		{
			name: "full",
			in:   "123 Main St, Raleigh, NC 27601",
			want: models.Address{Street: "123 Main St", City: "Raleigh", State: "NC", Zip: "27601"},
		},
		{
			name: "zip-plus-four",
			in:   "456 Oak Ave, Durham, NC 27701-1234",
			want: models.Address{Street: "456 Oak Ave", City: "Durham", State: "NC", Zip: "27701-1234"},
		},
		{
			name: "missing-state-and-zip",
			in:   "123 Main St, Raleigh",
			want: models.Address{Street: "123 Main St", City: "Raleigh"},
		},
		{
			name: "malformed-tail-degrades-to-state",
			in:   "123 Main St, Raleigh, North Carolina",
			want: models.Address{Street: "123 Main St", City: "Raleigh", State: "NO"},
		},
		{
			name: "single-segment",
			in:   "Raleigh",
			want: models.Address{},
		},
		{
			name: "empty",
			in:   "",
			want: models.Address{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseAddress(tc.in); got != tc.want {
				t.Errorf("ParseAddress(%q) = %+v, want %+v", tc.in, got, tc.want)
			}
		})
	}
}
