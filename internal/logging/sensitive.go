// Package logging configures structured logging for SEER and masks
// credential material before it reaches the log stream.
package logging

import (
	"strings"
)

// SensitiveFields contains attribute names whose values are masked in logs.
var SensitiveFields = map[string]bool{
	"password":          true,
	"secret":            true,
	"token":             true,
	"api_key":           true,
	"apikey":            true,
	"access_token":      true,
	"fetcher_api_key":   true,
	"secret_access_key": true,
	"redis_pass":        true,
	"authorization":     true,
	"bearer":            true,
	"x-api-key":         true,
	"webhook_url":       true,
	"dsn":               true,
}

// MaskedValue is the string used to replace sensitive values.
const MaskedValue = "[REDACTED]"

// IsSensitiveField checks if an attribute name refers to credential material.
func IsSensitiveField(fieldName string) bool {
	lowerField := strings.ToLower(fieldName)

	if SensitiveFields[lowerField] {
		return true
	}

	for sensitive := range SensitiveFields {
		if strings.Contains(lowerField, sensitive) {
			return true
		}
	}

	return false
}

// MaskSensitiveValue masks a value if the field name is sensitive.
func MaskSensitiveValue(fieldName, value string) string {
	if value == "" {
		return value
	}
	if IsSensitiveField(fieldName) {
		return MaskedValue
	}
	return value
}

// MaskAPIKey masks an API key, keeping the first and last 4 characters for
// correlation in debug output.
func MaskAPIKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return MaskedValue
	}
	return key[:4] + "****" + key[len(key)-4:]
}
