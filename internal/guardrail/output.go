package guardrail

import "regexp"

const (
	RedactedJWT   = "[REDACTED_JWT]"
	RedactedKey   = "[REDACTED_API_KEY]"
	RedactedCard  = "[REDACTED_CARD]"
	RedactedEmail = "[REDACTED_EMAIL]"
)

var (
	// header.payload.signature, base64url; заголовок JWT всегда начинается с eyJ ("{"")
	jwtRe = regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+`)

	// Ключи провайдеров: OpenAI/Stripe, AWS, GitHub, Google, Slack.
	apiKeyRe = regexp.MustCompile(`\b(?:` +
		`(?:sk|pk|rk)[-_](?:live_|test_|proj-|ant-)?[A-Za-z0-9_\-]{16,}` +
		`|AKIA[0-9A-Z]{16}` +
		`|gh[pousr]_[A-Za-z0-9]{30,}` +
		`|AIza[0-9A-Za-z_\-]{35}` +
		`|xox[abpr]-[A-Za-z0-9\-]{10,}` +
		`)`)

	// 13–19 цифр, допускаются одиночные пробелы/дефисы между ними.
	cardRe = regexp.MustCompile(`\b(?:\d[ \-]?){12,18}\d\b`)

	emailRe = regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`)
)

// OutputGuard редактирует ответ модели перед тем, как он попадёт в историю.
// Порядок фиксирован: JWT и ключи раньше цифр, иначе длинная цифровая
// последовательность внутри токена испортит его совпадение.
type OutputGuard struct {
	redactEmail bool
}

type OutputOption func(*OutputGuard)

// WithEmailRedaction: политика, по умолчанию выключена.
func WithEmailRedaction(enabled bool) OutputOption {
	return func(g *OutputGuard) { g.redactEmail = enabled }
}

func NewOutputGuard(opts ...OutputOption) *OutputGuard {
	g := &OutputGuard{}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *OutputGuard) Sanitize(text string) string {
	if text == "" {
		return text
	}
	text = jwtRe.ReplaceAllLiteralString(text, RedactedJWT)
	text = apiKeyRe.ReplaceAllLiteralString(text, RedactedKey)
	text = cardRe.ReplaceAllLiteralString(text, RedactedCard)
	if g.redactEmail {
		text = emailRe.ReplaceAllLiteralString(text, RedactedEmail)
	}
	return text
}
