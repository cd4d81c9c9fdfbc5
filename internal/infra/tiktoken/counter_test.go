package tiktoken

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// エンコーディングのダウンロードを伴わない推定モードの確認
func TestCounter_EstimateFallback(t *testing.T) {
	c := &Counter{}

	assert.Equal(t, 0, c.CountTokens(""))
	assert.Equal(t, 2, c.CountTokens("MADDE"))
	assert.Equal(t, "MAD", c.TrimToTokenLimit("MADDE 1", 1))
	assert.Equal(t, "MADDE 1", c.TrimToTokenLimit("MADDE 1", 10))
	assert.Equal(t, "", c.TrimToTokenLimit("MADDE 1", 0))
}
