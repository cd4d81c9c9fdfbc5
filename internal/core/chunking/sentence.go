package chunking

import (
	"regexp"
	"strings"
)

// 文末記号の後の空白、または改行を文境界とみなす
var sentenceBoundary = regexp.MustCompile(`[.!?…;]+["'”’)\]]*[ \t]+|\s*\n\s*`)

type span struct {
	start, end int
}

// splitSentences は text を連続した文スパンに分割する
// 各スパンは text の部分文字列を指し、全スパンを連結すると text に戻る
func splitSentences(text string) []span {
	var spans []span
	start := 0
	for _, loc := range sentenceBoundary.FindAllStringIndex(text, -1) {
		if loc[1] <= start {
			continue
		}
		if strings.TrimSpace(text[start:loc[1]]) != "" {
			spans = append(spans, span{start: start, end: loc[1]})
			start = loc[1]
		}
	}
	if start < len(text) {
		if strings.TrimSpace(text[start:]) != "" {
			spans = append(spans, span{start: start, end: len(text)})
		} else if len(spans) > 0 {
			spans[len(spans)-1].end = len(text)
		}
	}
	return spans
}
