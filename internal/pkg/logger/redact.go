package logger

import "strings"

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}

// RedactPhone masks a phone number for safe logging, keeping only the last
// four digits: "+5511987654321" → "***4321". Values too short to carry
// meaningful identity are masked entirely.
func RedactPhone(phone string) string {
	cleaned := strings.TrimSpace(phone)
	if len(cleaned) <= 4 {
		return "****"
	}
	return "***" + cleaned[len(cleaned)-4:]
}
