package indicator

import (
	"fmt"
	"os"
	"strings"
)

type locale string

const (
	localeEnglish locale = "en"
)

type messages struct {
	marker   string
	waiting  string
	complete string
	aborted  string
}

func (m messages) markerPrompt(index int) string {
	return fmt.Sprintf(m.marker, index+1, markerCount)
}

func indicatorMessagesFromEnv() messages {
	return indicatorMessages(resolveLocale(os.Getenv("LANG")))
}

func resolveLocale(raw string) locale {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(raw, "en") {
		return localeEnglish
	}
	return localeEnglish
}

func indicatorMessages(tag locale) messages {
	switch tag {
	case localeEnglish:
		fallthrough
	default:
		return messages{
			marker:   "Look at marker %d of %d, then trigger",
			waiting:  "Capturing…",
			complete: "Calibration complete",
			aborted:  "Calibration aborted",
		}
	}
}
