package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{name: "equal", a: "1.04", b: "1.04", want: 0},
		{name: "numeric ordering", a: "1.9", b: "1.10", want: -1},
		{name: "patch release greater", a: "1.04", b: "1.04.1", want: -1},
		{name: "v prefix ignored", a: "v2", b: "2", want: 0},
		{name: "case insensitive text", a: "1.0-BETA", b: "1.0-beta", want: 0},
		{name: "numeric beats text segment", a: "1.2", b: "1.rc", want: 1},
		{name: "hyphen separates segments", a: "2020-final", b: "2020", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareVersions(tt.a, tt.b))
			assert.Equal(t, -tt.want, CompareVersions(tt.b, tt.a))
		})
	}
}
