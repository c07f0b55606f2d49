package util

import (
	"fmt"
	"strings"
	"time"
)

const forbiddenFilenameChars = `\/<>:?"| *`

// SanitizeFilename drops path and shell-hostile characters and joins the remaining words with "_".
func SanitizeFilename(name string) string {
	if name == "" {
		return ""
	}

	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(forbiddenFilenameChars, r) {
			return -1
		}

		return r
	}, name)

	return strings.Join(strings.Fields(cleaned), "_")
}

func DefaultFilename(now time.Time) string {
	return fmt.Sprintf("video_%d", now.Unix())
}
