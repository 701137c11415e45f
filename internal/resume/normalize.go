package resume

import (
	"regexp"

	"github.com/iconidentify/grabba-media/internal/domain"
)

var (
	ansiColor   = regexp.MustCompile(`\x1b\[[0-9;]*m`)
	firstDigits = regexp.MustCompile(`\d+`)
)

// NormalizePercent turns a raw percent rendering such as
// "\x1b[0;94m 45.2%\x1b[0m" into "45". Inputs without digits yield "0".
func NormalizePercent(raw string) string {
	clean := ansiColor.ReplaceAllString(raw, "")
	if m := firstDigits.FindString(clean); m != "" {
		return m
	}
	return domain.DefaultPercent
}
