package language

import (
	"errors"
	"fmt"
	"strings"
)

// Language identifies a programming language accepted by the judge.
type Language string

// Supported languages.
const (
	Java       Language = "JAVA"
	Python     Language = "PYTHON"
	Cpp        Language = "CPP"
	JavaScript Language = "JAVASCRIPT"
)

// ErrUnsupportedLanguage indicates the requested language is not allowed.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// All returns every supported language in a stable order.
func All() []Language {
	return []Language{Java, Python, Cpp, JavaScript}
}

// Parse resolves a user supplied identifier, ignoring case and surrounding whitespace.
func Parse(value string) (Language, error) {
	normalized := Language(strings.ToUpper(strings.TrimSpace(value)))
	for _, lang := range All() {
		if lang == normalized {
			return lang, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, value)
}

func (l Language) String() string {
	return string(l)
}
