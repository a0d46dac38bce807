package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuplicatePolicy(t *testing.T) {
	tests := []struct {
		input string
		want  DuplicatePolicy
	}{
		{"skip", DuplicateSkip},
		{"overwrite", DuplicateOverwrite},
		{"fail", DuplicateFail},
		{" FAIL ", DuplicateFail},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDuplicatePolicy(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseDuplicatePolicy("ignore")
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = ParseDuplicatePolicy("")
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestDuplicatePolicy_ChecksExisting(t *testing.T) {
	assert.True(t, DuplicateSkip.ChecksExisting())
	assert.True(t, DuplicateFail.ChecksExisting())
	assert.False(t, DuplicateOverwrite.ChecksExisting())
}

func TestAllDuplicatePolicies(t *testing.T) {
	for _, p := range AllDuplicatePolicies() {
		assert.True(t, p.IsValid())
		assert.NotEqual(t, unknownDescription, p.Description())
	}
	assert.Equal(t, unknownDescription, DuplicatePolicy("x").Description())
}

func TestParseHashScheme(t *testing.T) {
	got, err := ParseHashScheme("")
	require.NoError(t, err)
	assert.Equal(t, HashSchemeMurmur3, got)

	got, err = ParseHashScheme("UUID5")
	require.NoError(t, err)
	assert.Equal(t, HashSchemeUUID5, got)

	_, err = ParseHashScheme("sha1")
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	assert.Equal(t, "murmur3", HashScheme("").String())
}
