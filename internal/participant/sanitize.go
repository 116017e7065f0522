/*
Copyright © 2025 Mob Games.

Released under MIT license.
*/

package participant

import (
	"strings"
)

// Limits of the participant data.
const (
	MaxSlackIDLength           = 50
	MaxNameLength              = 100
	MinSlackIDLength           = 3
	MinMinecraftUsernameLength = 3
	MaxMinecraftUsernameLength = 16
)

// SanitizeSlackID keeps only ASCII letters and digits.
func SanitizeSlackID(s string) string {
	return strings.Map(func(r rune) rune {
		if isASCIIAlnum(r) {
			return r
		}
		return -1
	}, s)
}

// SanitizeName removes HTML-significant characters and surrounding spaces.
func SanitizeName(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', '"', '\'', '&':
			return -1
		}
		return r
	}, s))
}

// SanitizeMinecraftUsername keeps only the characters Minecraft allows in usernames
// and cuts the result to the maximal username length.
func SanitizeMinecraftUsername(s string) string {
	res := strings.Map(func(r rune) rune {
		if isASCIIAlnum(r) || r == '_' {
			return r
		}
		return -1
	}, s)
	if len(res) > MaxMinecraftUsernameLength {
		res = res[:MaxMinecraftUsernameLength]
	}
	return res
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
