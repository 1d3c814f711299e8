//go:build windows

package process

import "strings"

// sameName compares case-insensitively and ignores a trailing .exe, so
// "Discord.exe" and "discord" match.
func sameName(got, want string) bool {
	return strings.EqualFold(trimExe(got), trimExe(want))
}

func trimExe(s string) string {
	if len(s) > 4 && strings.EqualFold(s[len(s)-4:], ".exe") {
		return s[:len(s)-4]
	}
	return s
}
