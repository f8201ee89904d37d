package encoding

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCharsetReader(t *testing.T) {
	t.Run("should pass utf-8 input through untouched", func(t *testing.T) {
		in := strings.NewReader("café")
		r, err := CharsetReader("UTF-8", in)
		require.NoError(t, err)
		assert.Same(t, in, r)
	})

	t.Run("should decode windows-1252 into utf-8", func(t *testing.T) {
		r, err := CharsetReader(" Windows-1252 ", strings.NewReader("\xa3250 \x93quoted\x94"))
		require.NoError(t, err)

		out, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, "£250 “quoted”", string(out))
	})

	t.Run("should decode iso-8859-1", func(t *testing.T) {
		r, err := CharsetReader("iso-8859-1", strings.NewReader("Caf\xe9"))
		require.NoError(t, err)

		out, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, "Café", string(out))
	})

	t.Run("should reject an unknown label", func(t *testing.T) {
		_, err := CharsetReader("klingon-8", strings.NewReader("x"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "klingon-8")
	})
}

func TestEnsureUTF8(t *testing.T) {
	t.Run("should keep valid utf-8", func(t *testing.T) {
		in := []byte("£5 psf")
		assert.Equal(t, in, EnsureUTF8(in))
	})

	t.Run("should keep empty input", func(t *testing.T) {
		assert.Empty(t, EnsureUTF8(nil))
	})

	t.Run("should repair windows-1252 bytes", func(t *testing.T) {
		assert.Equal(t, "£5 psf", string(EnsureUTF8([]byte("\xa35 psf"))))
	})
}
