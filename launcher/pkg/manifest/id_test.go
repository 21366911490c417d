package manifest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewId(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr error
	}{
		{name: "simple id", value: "pub.tool.v1"},
		{name: "mixed case allowed", value: "Pub.Tool.V1"},
		{name: "empty rejected", value: "", wantErr: ErrEmptyId},
		{name: "whitespace only rejected", value: "   ", wantErr: ErrEmptyId},
		{name: "traversal rejected", value: "..secret", wantErr: ErrInvalidId},
		{name: "slash rejected", value: "a/b", wantErr: ErrInvalidId},
		{name: "backslash rejected", value: `a\b`, wantErr: ErrInvalidId},
		{name: "colon rejected", value: "c:evil", wantErr: ErrInvalidId},
		{name: "control character rejected", value: "a\x00b", wantErr: ErrInvalidId},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := NewId(tt.value)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.value, id.String())
		})
	}
}

func TestIdEqualityIsCaseInsensitive(t *testing.T) {
	a := mustId(t, "Pub.Tool.V1")
	b := mustId(t, "pub.tool.v1")
	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Normalized(), b.Normalized())
	assert.NotEqual(t, a.String(), b.String())
}

func TestIdJSONRoundTrip(t *testing.T) {
	id := mustId(t, "pub.tool.v1")
	data, err := json.Marshal(id)
	require.NoError(t, err)
	assert.Equal(t, `"pub.tool.v1"`, string(data))

	var decoded Id
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, id.Equal(decoded))
}

func TestIdService(t *testing.T) {
	var svc IdService

	id, err := svc.GenerateContentId("Some Publisher", "Cool Mod!", "1.04")
	require.NoError(t, err)
	assert.Equal(t, "some-publisher.cool-mod.1.04", id.String())

	// Deterministic for the same inputs.
	again, err := svc.GenerateContentId("Some Publisher", "Cool Mod!", "1.04")
	require.NoError(t, err)
	assert.True(t, id.Equal(again))

	_, err = svc.GenerateContentId("", "name", "1.0")
	assert.Error(t, err)

	ref1, err := svc.GenerateReferralId("community")
	require.NoError(t, err)
	ref2, err := svc.GenerateReferralId("community")
	require.NoError(t, err)
	assert.False(t, ref1.Equal(ref2), "referral ids must be unique")
}
