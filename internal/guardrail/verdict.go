// Package guardrail: детерминированные проверки до и после вызова модели.
// Никакого инференса и I/O: одни и те же входы дают одни и те же ответы.
package guardrail

// Verdict: свежее значение на каждый вызов Validate.
type Verdict struct {
	IsValid bool   `json:"is_valid"`
	Reason  string `json:"reason,omitempty"` // пусто, если IsValid
	// Sanitized: текст, который обязаны использовать дальше по цепочке.
	Sanitized string `json:"sanitized"`
}

const securityViolationPrefix = "Security Violation"

func valid(text string) Verdict {
	return Verdict{IsValid: true, Sanitized: text}
}

func invalid(reason, text string) Verdict {
	return Verdict{IsValid: false, Reason: reason, Sanitized: text}
}
