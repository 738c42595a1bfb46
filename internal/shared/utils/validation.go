package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Wire payload size limits (in bytes)
const (
	MaxMessageSize    = 64 * 1024       // 64KB - single text frame limit
	MaxAudioChunkSize = 1 * 1024 * 1024 // 1MB - single binary audio frame limit
)

// String length limits
const (
	MaxUserIDLength      = 128
	MaxPackageNameLength = 256
	MaxLayoutTextLength  = 4096
	MaxSelectorLength    = 128
	MaxSelectorCount     = 64
)

// Regular expressions for validation
var (
	// PackageNamePattern matches reverse-DNS style app identifiers
	// such as cloud.lumena.captions.
	PackageNamePattern = regexp.MustCompile(`^[a-z][a-z0-9]*(\.[a-z0-9][a-z0-9-]*)+$`)
	// SafeIDPattern allows alphanumeric, hyphens, underscores
	SafeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}

	if value == "" && !required {
		return nil // Optional field, empty is OK
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}

	// Check for null bytes (security issue)
	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}

	return nil
}

// ValidatePackageName validates an app package identifier
func ValidatePackageName(pkg string) error {
	if err := ValidateString(pkg, "package_name", 3, MaxPackageNameLength, true); err != nil {
		return err
	}

	if !PackageNamePattern.MatchString(pkg) {
		return fmt.Errorf("package_name %q must be a reverse-DNS identifier", pkg)
	}

	return nil
}

// ValidateUserID validates a user identifier
func ValidateUserID(userID string) error {
	if err := ValidateString(userID, "user_id", 1, MaxUserIDLength, true); err != nil {
		return err
	}

	if !SafeIDPattern.MatchString(userID) {
		return fmt.Errorf("user_id contains invalid characters (only alphanumeric, hyphens, and underscores allowed)")
	}

	return nil
}

// ValidateFrameSize checks an inbound text frame against the size limit
func ValidateFrameSize(data []byte) error {
	if len(data) > MaxMessageSize {
		return fmt.Errorf("message size %d bytes exceeds maximum %d bytes", len(data), MaxMessageSize)
	}
	return nil
}

// ValidateAudioSize checks an inbound binary frame against the size limit
func ValidateAudioSize(data []byte) error {
	if len(data) > MaxAudioChunkSize {
		return fmt.Errorf("audio chunk size %d bytes exceeds maximum %d bytes", len(data), MaxAudioChunkSize)
	}
	return nil
}
