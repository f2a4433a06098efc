package models

import (
	"errors"
	"regexp"
	"strings"
)

// Saudi mobiles only: either the local 05XXXXXXXX form or the
// international +9665XXXXXXXX form.
var mobilePattern = regexp.MustCompile(`^(\+9665|05)[0-9]{8}$`)

var ErrInvalidMobile = errors.New("invalid mobile number")

// NormalizeMobile rewrites an accepted mobile number to the canonical
// international form +9665XXXXXXXX. Whitespace is tolerated around the
// input but not inside it.
func NormalizeMobile(raw string) (string, error) {
	mobile := strings.TrimSpace(raw)
	if !mobilePattern.MatchString(mobile) {
		return "", ErrInvalidMobile
	}
	if strings.HasPrefix(mobile, "05") {
		return "+966" + mobile[1:], nil
	}
	return mobile, nil
}

// DisplayMobile renders a normalized number back in the local 05XXXXXXXX
// form used on exports and dashboards. Unrecognized values pass through.
func DisplayMobile(mobile string) string {
	if strings.HasPrefix(mobile, "+966") {
		return "0" + mobile[4:]
	}
	return mobile
}
