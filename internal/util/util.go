package util

import (
	"os"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// MarshalJSON wraps Sonic for performance
func MarshalJSON(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

// UnmarshalJSON wraps Sonic for performance
func UnmarshalJSON(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}

// GenerateRandomID generates a prefixed random ID
func GenerateRandomID(prefix string) string {
	return prefix + uuid.New().String()
}

// ParseEnvList splits a comma-separated env value into trimmed non-empty entries.
func ParseEnvList(envVar string) []string {
	if envVar == "" {
		return nil
	}

	parts := strings.Split(envVar, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// GetEnvWithDefault returns the env value or a default when unset.
func GetEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// TruncateString shortens s to a prefix and suffix around a replacement marker.
func TruncateString(s string, prefixLen, suffixLen int, replacement string) string {
	if utf8.RuneCountInString(s) <= prefixLen+suffixLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:prefixLen]) + replacement + string(runes[len(runes)-suffixLen:])
}

// EstimateTokenCount gives a rough token estimate for logging (4 chars/token).
func EstimateTokenCount(text string) int {
	if text == "" {
		return 0
	}
	count := utf8.RuneCountInString(text) / 4
	if count == 0 {
		count = 1
	}
	return count
}
