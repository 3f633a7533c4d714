package refcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := NewCodec(8349271)

	for _, id := range []uint{1, 2, 42, 999, 123456789} {
		code := c.Encode(id)
		require.NotEmpty(t, code)

		got, err := c.Decode(code)
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	c := NewCodec(8349271)

	for _, code := range []string{"", "   ", "!!!", "-abc", "ref_42", "это-не-код"} {
		_, err := c.Decode(code)
		assert.ErrorIs(t, err, ErrInvalidCode, "code %q", code)
	}
}

func TestDecodeUppercaseAndWhitespace(t *testing.T) {
	c := NewCodec(8349271)

	code := c.Encode(42)
	got, err := c.Decode("  " + code + " ")
	require.NoError(t, err)
	assert.Equal(t, uint(42), got)
}

func TestCodeIsNotBareID(t *testing.T) {
	c := NewCodec(8349271)

	// The code must not leak the id in the obvious base36 form.
	assert.NotEqual(t, "16", c.Encode(42))
}

func TestDifferentSaltsDisagree(t *testing.T) {
	a := NewCodec(8349271)
	b := NewCodec(12345)

	code := a.Encode(42)
	got, err := b.Decode(code)
	if err == nil {
		assert.NotEqual(t, uint(42), got)
	}
}
