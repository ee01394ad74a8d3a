package tts

import "github.com/apresai/pdfcast/internal/script"

// VoiceSet assigns a voice to each speaker role.
type VoiceSet struct {
	Teacher Voice
	Student Voice
}

// For returns the voice for role. Unknown roles get the teacher's voice.
func (v VoiceSet) For(role script.Role) Voice {
	if role == script.RoleStudent {
		return v.Student
	}
	return v.Teacher
}

func chirp(locale, name string) Voice {
	return Voice{ID: locale + "-Chirp3-HD-" + name, LanguageCode: locale, Name: name}
}

// Teacher voices are male, student voices female, in every language.
var languageVoices = map[script.Language]VoiceSet{
	"en": {Teacher: chirp("en-US", "Charon"), Student: chirp("en-US", "Leda")},
	"hi": {Teacher: chirp("hi-IN", "Charon"), Student: chirp("hi-IN", "Leda")},
	"es": {Teacher: chirp("es-US", "Charon"), Student: chirp("es-US", "Leda")},
	"fr": {Teacher: chirp("fr-FR", "Charon"), Student: chirp("fr-FR", "Leda")},
	"de": {Teacher: chirp("de-DE", "Charon"), Student: chirp("de-DE", "Leda")},
}

// VoicesFor returns the voices for lang, falling back to English.
func VoicesFor(lang script.Language) VoiceSet {
	if v, ok := languageVoices[lang]; ok {
		return v
	}
	return languageVoices[script.DefaultLanguage]
}
