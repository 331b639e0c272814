package order

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Print parameter enumerations and upload limits, fixed by the service.
const MaxFileSize = 50 * 1024 * 1024

var allowedExtensions = []string{".stl", ".obj", ".3mf"}

var materials = map[string]string{
	"pla":  "PLA (базовый)",
	"petg": "PETG (прочный)",
	"abs":  "ABS (термостойкий)",
	"tpu":  "TPU (гибкий)",
}

var qualities = map[string]string{
	"draft":    "Черновое (0.3мм)",
	"standard": "Стандартное (0.2мм)",
	"high":     "Высокое (0.1мм)",
}

var infills = map[int]string{
	15:  "15% (легкая модель)",
	30:  "30% (стандарт)",
	50:  "50% (прочная)",
	100: "100% (максимальная прочность)",
}

var (
	nameRe  = regexp.MustCompile(`^[a-zA-Zа-яА-ЯёЁ\s\-']+$`)
	emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	phoneRe = regexp.MustCompile(`^\+?[1-9]\d{6,14}$`)
)

// ValidName checks the 2-50 limit in characters, not bytes, so
// Cyrillic names are measured the same as Latin ones.
func ValidName(name string) bool {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < 2 || n > 50 {
		return false
	}
	return nameRe.MatchString(name)
}

func ValidEmail(email string) bool {
	return emailRe.MatchString(strings.TrimSpace(email))
}

// ValidPhone strips separators before matching; an empty phone is not
// valid here because skipping is a separate control event.
func ValidPhone(phone string) bool {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == '+' {
			return r
		}
		return -1
	}, phone)
	return phoneRe.MatchString(cleaned)
}

func ValidMaterial(m string) bool {
	_, ok := materials[m]
	return ok
}

func ValidQuality(q string) bool {
	_, ok := qualities[q]
	return ok
}

func ValidInfill(i int) bool {
	_, ok := infills[i]
	return ok
}

// CheckFile validates an upload against the fixed format and size
// limits without touching any session.
func CheckFile(f FileRef) Outcome {
	lower := strings.ToLower(f.Name)
	supported := false
	for _, ext := range allowedExtensions {
		if strings.HasSuffix(lower, ext) {
			supported = true
			break
		}
	}
	if !supported {
		return OutcomeUnsupportedFormat
	}
	if f.Size > MaxFileSize {
		return OutcomeFileTooLarge
	}
	return OutcomeOK
}

// AllowedExtensions lists the accepted model formats for prompts.
func AllowedExtensions() []string {
	return allowedExtensions
}
