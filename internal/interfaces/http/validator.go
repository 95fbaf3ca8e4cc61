package http

import (
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"project_broadcast/internal/entities"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const (
	MaxSlugLength    = 64
	MaxMessageLength = 4096
)

var (
	slugPattern   = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	digitsPattern = regexp.MustCompile(`^[0-9]{10,15}$`)

	registerOnce sync.Once
	registerErr  error
)

// RegisterValidators adds the webhook schema rules to gin's validator. Safe
// to call more than once.
func RegisterValidators() error {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		if registerErr = v.RegisterValidation("e164digits", func(fl validator.FieldLevel) bool {
			return digitsPattern.MatchString(fl.Field().String())
		}); registerErr != nil {
			return
		}
		registerErr = v.RegisterValidation("contactstatus", func(fl validator.FieldLevel) bool {
			switch entities.ContactStatus(fl.Field().String()) {
			case entities.ContactSent, entities.ContactFailed:
				return true
			}
			return false
		})
	})
	return registerErr
}

// ValidSlug checks if a slug is safe (alphanumeric + underscore + hyphen)
func ValidSlug(s string) bool {
	if s == "" || len(s) > MaxSlugLength {
		return false
	}
	return slugPattern.MatchString(s)
}

// SanitizeString removes null bytes and invalid UTF-8
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")

	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for _, r := range s {
			if r != utf8.RuneError {
				v = append(v, r)
			}
		}
		s = string(v)
	}
	return s
}

// TruncateString truncates s to at most maxLen bytes without splitting a rune
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	for maxLen > 0 && !utf8.RuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen]
}
