package script

import "strings"

// Language is the selector value sent with script and audio generation.
type Language string

// DefaultLanguage is used when nothing (or something unknown) is selected.
const DefaultLanguage Language = "en"

// LanguageInfo describes a supported language.
type LanguageInfo struct {
	Code Language
	Name string
}

var languages = []LanguageInfo{
	{Code: "en", Name: "English"},
	{Code: "hi", Name: "Hindi"},
	{Code: "es", Name: "Spanish"},
	{Code: "fr", Name: "French"},
	{Code: "de", Name: "German"},
}

// Languages returns the supported languages in menu order.
func Languages() []LanguageInfo {
	out := make([]LanguageInfo, len(languages))
	copy(out, languages)
	return out
}

// ParseLanguage normalizes a selector value. Unknown values map to
// DefaultLanguage.
func ParseLanguage(s string) Language {
	code := Language(strings.ToLower(strings.TrimSpace(s)))
	for _, l := range languages {
		if l.Code == code {
			return code
		}
	}
	return DefaultLanguage
}

// Name returns the language's English name, falling back to English.
func (l Language) Name() string {
	for _, info := range languages {
		if info.Code == l {
			return info.Name
		}
	}
	return "English"
}

// Next cycles through Languages, wrapping around.
func (l Language) Next() Language {
	for i, info := range languages {
		if info.Code == l {
			return languages[(i+1)%len(languages)].Code
		}
	}
	return DefaultLanguage
}
