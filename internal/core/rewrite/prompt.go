package rewrite

import "strings"

// systemPrompt は質問を検索キーワードに圧縮するための固定指示
const systemPrompt = `Sen Türk hukuku konusunda uzman bir arama asistanısın.
Görevin, kullanıcının günlük dille sorduğu hukuki soruyu mevzuat veritabanında aramaya uygun, kısa bir anahtar kelime dizisine dönüştürmektir.

Kurallar:
- Hukuki terimleri ve kanun adlarını koru.
- Gereksiz kelimeleri, soru eklerini ve kişisel ifadeleri çıkar.
- Sadece anahtar kelimeleri döndür; açıklama, numaralandırma veya tırnak ekleme.

Örnekler:
Soru: İşten çıkarılırsam tazminat alabilir miyim?
Anahtar kelimeler: işçi hakları iş sözleşmesi feshi tazminat kıdem tazminatı

Soru: Kiracım kirayı ödemiyor ne yapabilirim?
Anahtar kelimeler: kira sözleşmesi kiracının temerrüdü tahliye kira bedeli

Soru: Boşanırken mal paylaşımı nasıl yapılır?
Anahtar kelimeler: boşanma mal rejimi edinilmiş mallara katılma tasfiye`

// BuildPrompt はユーザー入力部分のプロンプトを組み立てる
func BuildPrompt(question string) string {
	var b strings.Builder
	b.WriteString("Soru: ")
	b.WriteString(question)
	b.WriteString("\nAnahtar kelimeler:")
	return b.String()
}

// cleanResponse はモデル出力から前置きや引用符を取り除く
func cleanResponse(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "Anahtar kelimeler:"); i >= 0 {
		s = s[i+len("Anahtar kelimeler:"):]
	}
	s = strings.Trim(s, " \t\r\n\"'`“”")
	return strings.Join(strings.Fields(s), " ")
}
