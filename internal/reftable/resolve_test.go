package reftable

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		id      string
		want    string
		ok      bool
	}{
		{
			name:    "exact",
			entries: []Entry{{Key: "XYZ1", Route: "North"}},
			id:      "XYZ1",
			want:    "North",
			ok:      true,
		},
		{
			name:    "whitespace and case normalized",
			entries: []Entry{{Key: "AB 12", Route: "West"}},
			id:      "ab12",
			want:    "West",
			ok:      true,
		},
		{
			name:    "tabs and newlines stripped",
			entries: []Entry{{Key: "AB\t1\n2", Route: "West"}},
			id:      "AB12",
			want:    "West",
			ok:      true,
		},
		{
			name:    "hyphen is not stripped",
			entries: []Entry{{Key: "AB12", Route: "West"}},
			id:      "AB-12",
			ok:      false,
		},
		{
			name:    "unknown",
			entries: []Entry{{Key: "AB12", Route: "West"}},
			id:      "ARAM045",
			ok:      false,
		},
		{
			name: "exact beats earlier normalized match",
			entries: []Entry{
				{Key: "ab12", Route: "First"},
				{Key: "AB12", Route: "Second"},
			},
			id:   "AB12",
			want: "Second",
			ok:   true,
		},
		{
			name: "first normalized match in table order",
			entries: []Entry{
				{Key: "ab 12", Route: "First"},
				{Key: "Ab12 ", Route: "Second"},
			},
			id:   "AB12",
			want: "First",
			ok:   true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := New(tc.entries...).Resolve(tc.id)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}
