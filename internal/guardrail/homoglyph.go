package guardrail

import (
	"strings"
	"unicode"
)

// homoglyphs: символы других письменностей, визуально совпадающие с латиницей.
// Полноширинные формы (ｉｇｎｏｒｅ) сюда не входят: их раскладывает NFKD.
var homoglyphs = map[rune]rune{
	// Кириллица, строчные
	'а': 'a', 'е': 'e', 'о': 'o', 'р': 'p', 'с': 'c', 'у': 'y', 'х': 'x', 'ѕ': 's',
	'і': 'i', 'ј': 'j', 'ԁ': 'd',
	'ӏ': 'l', 'ԛ': 'q', 'ԝ': 'w',
	// Кириллица, прописные
	'А': 'A', 'В': 'B', 'Е': 'E', 'К': 'K', 'М': 'M', 'Н': 'H', 'О': 'O', 'Р': 'P',
	'С': 'C', 'Т': 'T', 'У': 'Y', 'Х': 'X', 'Ѕ': 'S', 'І': 'I', 'Ј': 'J', 'Ԁ': 'D',
	// Греческий
	'α': 'a', 'ε': 'e', 'ι': 'i', 'κ': 'k', 'ν': 'v', 'ο': 'o', 'ρ': 'p', 'τ': 't',
	'υ': 'u', 'χ': 'x',
	'Α': 'A', 'Β': 'B', 'Ε': 'E', 'Ζ': 'Z', 'Η': 'H', 'Ι': 'I', 'Κ': 'K', 'Μ': 'M',
	'Ν': 'N', 'Ο': 'O', 'Ρ': 'P', 'Τ': 'T', 'Υ': 'Y', 'Χ': 'X',
	// Прочее
	'ı': 'i', 'ℓ': 'l', '∣': 'l',
}

// invisible: символы нулевой ширины, которыми разбивают ключевые слова (i\u200bgnore).
var invisible = map[rune]bool{
	'\u200b': true, // ZERO WIDTH SPACE
	'\u200c': true, // ZERO WIDTH NON-JOINER
	'\u200d': true, // ZERO WIDTH JOINER
	'\u2060': true, // WORD JOINER
	'\ufeff': true, // BOM
	'\u00ad': true, // SOFT HYPHEN
}

func replaceHomoglyphs(s string) string {
	return strings.Map(func(r rune) rune {
		if latin, ok := homoglyphs[r]; ok {
			return latin
		}
		return r
	}, s)
}

// fold убирает невидимые символы и диакритику (после NFKD это отдельные Mn-руны).
// Используется только для сопоставления с deny-паттернами, а не для Sanitized.
func fold(s string) string {
	return strings.Map(func(r rune) rune {
		if invisible[r] || unicode.Is(unicode.Mn, r) {
			return -1
		}
		return r
	}, s)
}
