package guardrail

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DefaultMaxInputLength: защита от DoS огромными сообщениями (в рунах).
const DefaultMaxInputLength = 4000

// Упорядоченный список: первое совпадение определяет причину.
// Компилируется один раз при старте, никогда в hot path.
var denyPatterns = []struct {
	re     *regexp.Regexp
	detail string
}{
	{regexp.MustCompile(`(?i)ignore\s+(all\s+)?(the\s+)?(previous|prior|above|earlier)\s+(instructions|prompts?|rules|directions)`), "instruction override"},
	{regexp.MustCompile(`(?i)disregard\s+(all\s+)?(the\s+)?(previous|prior|above|your)\s+(instructions|rules|guidelines|programming)`), "instruction override"},
	{regexp.MustCompile(`(?i)forget\s+(all\s+)?(your|the|previous|prior)\s+(instructions|rules|context|guidelines)`), "instruction override"},
	{regexp.MustCompile(`(?i)override\s+(the\s+)?(system|safety|security)\s+(prompt|instructions|rules|policy)`), "explicit override attempt"},
	{regexp.MustCompile(`(?i)bypass\s+(the\s+)?(safety|security|content)\s+(filters?|checks?|polic(y|ies)|rules)`), "explicit bypass attempt"},
	{regexp.MustCompile(`(?i)(reveal|show|print|output|repeat)\s+(me\s+)?(your|the)\s+(system|initial|original|hidden)\s+(prompt|instructions|message)`), "system prompt extraction"},
	{regexp.MustCompile(`(?i)you\s+are\s+now\s+(in\s+)?(DAN|developer\s+mode|an?\s+unrestricted|jailbroken|unfiltered)`), "identity override"},
	{regexp.MustCompile(`(?i)\bDAN\s+mode\b|\bdo\s+anything\s+now\b`), "DAN jailbreak"},
	{regexp.MustCompile(`(?i)(enter|enable|activate)\s+(developer|debug|god|sudo|jailbreak)\s+mode`), "mode jailbreak"},
	{regexp.MustCompile(`(?i)you\s+have\s+no\s+(restrictions|rules|limitations|guidelines|filters)`), "no restrictions claim"},
	{regexp.MustCompile(`(?i)pretend\s+(that\s+)?(you\s+are|to\s+be)\s+(an?\s+)?(evil|unrestricted|unfiltered|uncensored)`), "roleplay jailbreak"},
	{regexp.MustCompile(`(?i)<\|im_start\|>\s*system|\[/?SYSTEM\]|###\s*(SYSTEM|NEW\s+INSTRUCTIONS?)`), "delimiter injection"},
	{regexp.MustCompile(`(?i)\bjailbreak(ed|ing)?\b`), "explicit jailbreak keyword"},
}

// InputGuard: чистая проверка входящего текста, без I/O.
type InputGuard struct {
	maxLength int
}

type InputOption func(*InputGuard)

func WithMaxLength(n int) InputOption {
	return func(g *InputGuard) {
		if n > 0 {
			g.maxLength = n
		}
	}
}

func NewInputGuard(opts ...InputOption) *InputGuard {
	g := &InputGuard{maxLength: DefaultMaxInputLength}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *InputGuard) MaxLength() int { return g.maxLength }

// Validate: пусто → отказ; длиннее лимита → отказ с обрезанным текстом;
// NFKD + замена гомоглифов; прогон по deny-паттернам (первое совпадение побеждает).
// При успехе Sanitized: нормализованный текст.
func (g *InputGuard) Validate(text string) Verdict {
	if strings.TrimSpace(text) == "" {
		return invalid("Input must be a non-empty string", "")
	}

	if utf8.RuneCountInString(text) > g.maxLength {
		return invalid("Input exceeds maximum length", truncateRunes(text, g.maxLength))
	}

	normalized := Normalize(text)
	probe := fold(normalized)

	for _, p := range denyPatterns {
		if p.re.MatchString(probe) {
			return invalid(securityViolationPrefix+": "+p.detail+" detected", normalized)
		}
	}

	return valid(normalized)
}

// Normalize: NFKD (совместимая декомпозиция) и затем таблица гомоглифов.
func Normalize(text string) string {
	return replaceHomoglyphs(norm.NFKD.String(text))
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
