// Package textnorm приводит текст постов и поисковых запросов к сравнимому виду.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// strippable отбрасывает пробелы, zero-width символы и ASCII-знаки препинания/символы.
var strippable = runes.Predicate(func(r rune) bool {
	return unicode.IsSpace(r) || isZeroWidth(r) || isASCIISymbol(r)
})

// canonical собирает цепочку заново на каждый вызов: transform.Chain хранит состояние
// и не годится для параллельного использования. Второй NFKC склеивает базовую букву
// с комбинирующим знаком, между которыми стоял удалённый символ.
func canonical() transform.Transformer {
	return transform.Chain(
		norm.NFKC,
		runes.Remove(strippable),
		runes.Map(unicode.ToLower),
		norm.NFKC,
	)
}

// Normalize возвращает каноническую форму текста: NFKC, без пробелов, zero-width символов
// и ASCII-символов, в нижнем регистре. Функция чистая и идемпотентная.
func Normalize(text string) string {
	out, _, _ := transform.String(canonical(), text)
	return out
}

// UnescapeEntities раскрывает &lt;, &gt; и &amp; ровно один раз, в этом порядке.
// Повторного раскрытия нет: "&amp;lt;" превращается в "&lt;".
func UnescapeEntities(text string) string {
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	return strings.ReplaceAll(text, "&amp;", "&")
}

func isZeroWidth(r rune) bool {
	return (r >= '\u200B' && r <= '\u200D') || r == '\uFEFF'
}

// isASCIISymbol покрывает диапазоны !–/, :–@, [–` и {–~.
func isASCIISymbol(r rune) bool {
	return (r >= 0x21 && r <= 0x2F) ||
		(r >= 0x3A && r <= 0x40) ||
		(r >= 0x5B && r <= 0x60) ||
		(r >= 0x7B && r <= 0x7E)
}
