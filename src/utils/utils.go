// Package utils holds small shared helpers.
package utils

import (
	"regexp"
	"strings"
)

var (
	macColonPattern  = regexp.MustCompile(`^([0-9A-F]{2}[:]){5}([0-9A-F]{2})$`)
	macHyphenPattern = regexp.MustCompile(`^([0-9A-F]{2}[-]){5}([0-9A-F]{2})$`)
	macBarePattern   = regexp.MustCompile(`^[0-9A-F]{12}$`)
	hexLetterPattern = regexp.MustCompile(`[A-F]`)
)

// ValidateMACAddress checks if a string is a valid MAC address.
// Supports formats: XX:XX:XX:XX:XX:XX, XX-XX-XX-XX-XX-XX, XXXXXXXXXXXX.
func ValidateMACAddress(mac string) bool {
	mac = strings.ToUpper(strings.TrimSpace(mac))
	if mac == "" {
		return false
	}

	if macColonPattern.MatchString(mac) || macHyphenPattern.MatchString(mac) {
		return true
	}

	// Without separators, require at least one hex letter to distinguish a
	// MAC from a purely numeric identifier.
	return macBarePattern.MatchString(mac) && hexLetterPattern.MatchString(mac)
}
