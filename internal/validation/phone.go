package validation

import "strings"

// NormalizePhone приводит российский номер к формату E.164 (+7XXXXXXXXXX).
// Если номер распознать не удалось, возвращается пустая строка.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if len(digits) == 11 && digits[0] == '8' {
		digits = "7" + digits[1:]
	}

	switch {
	case len(digits) == 11 && digits[0] == '7':
		return "+" + digits
	case len(digits) == 10 && digits[0] == '9':
		return "+7" + digits
	}

	return ""
}
