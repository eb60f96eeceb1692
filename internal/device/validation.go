package device

import (
	"fmt"
	"unicode/utf8"
)

const (
	// MaxSSIDLength is the 802.11 SSID limit in bytes
	MaxSSIDLength = 32

	// MaxPasswordLength is the WPA2 passphrase limit (63 ASCII chars) plus
	// room for a 64-hex-digit PSK
	MaxPasswordLength = 64
)

// ValidateSSID validates a WiFi SSID.
// SSIDs must be non-empty and <= 32 bytes.
func ValidateSSID(ssid string) error {
	if ssid == "" {
		return NewValidationError("WiFi SSID cannot be empty")
	}
	if len(ssid) > MaxSSIDLength {
		return NewValidationError(fmt.Sprintf("WiFi SSID too long (max %d bytes): %d bytes", MaxSSIDLength, len(ssid)))
	}
	if !utf8.ValidString(ssid) {
		return NewValidationError("WiFi SSID is not valid UTF-8")
	}
	return nil
}

// ValidatePassword validates a WiFi password.
// Empty is allowed (open networks). The device decides whether a short
// password is acceptable, so only the upper bound is enforced here.
func ValidatePassword(password string) error {
	if len(password) > MaxPasswordLength {
		return NewValidationError(fmt.Sprintf("WiFi password too long (max %d chars): %d chars", MaxPasswordLength, len(password)))
	}
	return nil
}

// ValidateCredentials validates both fields. The SSID is checked first.
func ValidateCredentials(creds Credentials) error {
	if err := ValidateSSID(creds.SSID); err != nil {
		return err
	}
	return ValidatePassword(creds.Password)
}

// ValidateCredentialsForNetwork adds the security check a UI can apply when
// the SSID came from a scan: secured networks need a password.
// Hidden networks skip the check since their security is unknown.
func ValidateCredentialsForNetwork(creds Credentials, network *NetworkRecord) error {
	if err := ValidateCredentials(creds); err != nil {
		return err
	}
	if network != nil && !creds.Hidden && network.Secure && creds.Password == "" {
		return NewValidationError(fmt.Sprintf("network %q is secured, a password is required", network.SSID))
	}
	return nil
}
