package tiktoken

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding は埋め込みモデルと揃えたエンコーディング
const DefaultEncoding = "cl100k_base"

// Counter はトークン数をカウントする機能を提供する
type Counter struct {
	encoding *tiktoken.Tiktoken
}

// NewCounter は新しいCounterを作成する
func NewCounter(encodingName string) (*Counter, error) {
	if encodingName == "" {
		encodingName = DefaultEncoding
	}
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding %s: %w", encodingName, err)
	}

	return &Counter{encoding: encoding}, nil
}

// CountTokens はテキストのトークン数をカウントする
func (c *Counter) CountTokens(text string) int {
	if c.encoding == nil {
		return EstimateTokens(text)
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// TrimToTokenLimit はテキストを先頭から limit トークン以内に切り詰める
func (c *Counter) TrimToTokenLimit(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if c.encoding == nil {
		runes := []rune(text)
		if n := limit * 3; len(runes) > n {
			return string(runes[:n])
		}
		return text
	}

	tokens := c.encoding.Encode(text, nil, nil)
	if len(tokens) <= limit {
		return text
	}
	return c.encoding.Decode(tokens[:limit])
}

// EstimateTokens はテキストの推定トークン数を返す
// 正確にカウントせず、文字数を基準に大まかな値を返す
func EstimateTokens(text string) int {
	return (len([]rune(text)) + 2) / 3
}
