package utils

// Truncate caps s at maxLen runes, appending "..." when content was cut.
// Operates on runes so multi-byte text is never split mid-character.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen > 3 {
		return string(runes[:maxLen-3]) + "..."
	}
	return string(runes[:maxLen])
}
