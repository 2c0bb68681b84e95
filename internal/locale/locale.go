package locale

import (
	"fmt"
	"strings"
)

// Tag selects the transcription, speech-output and keyword locale of a session.
type Tag string

const (
	Korean   Tag = "ko-KR"
	English  Tag = "en-US"
	Japanese Tag = "ja-JP"
	Chinese  Tag = "zh-CN"
)

// Default is the language a freshly mounted session starts in.
const Default = Korean

var all = []Tag{Korean, English, Japanese, Chinese}

// All returns the supported tags in display order.
func All() []Tag {
	return append([]Tag(nil), all...)
}

// Parse accepts a full tag ("en-US") or its base language ("en"), case-insensitively.
func Parse(value string) (Tag, error) {
	value = strings.TrimSpace(value)
	for _, tag := range all {
		if strings.EqualFold(string(tag), value) || strings.EqualFold(tag.Base(), value) {
			return tag, nil
		}
	}
	return "", fmt.Errorf("unsupported language %q", value)
}

func (t Tag) Valid() bool {
	for _, tag := range all {
		if tag == t {
			return true
		}
	}
	return false
}

// Base returns the ISO-639-1 part of the tag, e.g. "ko".
func (t Tag) Base() string {
	base, _, _ := strings.Cut(string(t), "-")
	return base
}

func (t Tag) String() string { return string(t) }
