package tts

import (
	"strings"
	"testing"

	"github.com/apresai/pdfcast/internal/script"
)

func TestVoicesFor(t *testing.T) {
	tests := []struct {
		lang    script.Language
		locale  string
		teacher string
		student string
	}{
		{"en", "en-US", "en-US-Chirp3-HD-Charon", "en-US-Chirp3-HD-Leda"},
		{"hi", "hi-IN", "hi-IN-Chirp3-HD-Charon", "hi-IN-Chirp3-HD-Leda"},
		{"es", "es-US", "es-US-Chirp3-HD-Charon", "es-US-Chirp3-HD-Leda"},
		{"fr", "fr-FR", "fr-FR-Chirp3-HD-Charon", "fr-FR-Chirp3-HD-Leda"},
		{"de", "de-DE", "de-DE-Chirp3-HD-Charon", "de-DE-Chirp3-HD-Leda"},
		{"xx", "en-US", "en-US-Chirp3-HD-Charon", "en-US-Chirp3-HD-Leda"},
	}
	for _, tt := range tests {
		v := VoicesFor(tt.lang)
		if v.Teacher.ID != tt.teacher || v.Student.ID != tt.student {
			t.Errorf("VoicesFor(%q) = %s/%s, want %s/%s", tt.lang, v.Teacher.ID, v.Student.ID, tt.teacher, tt.student)
		}
		if v.Teacher.LanguageCode != tt.locale || !strings.HasPrefix(v.Student.ID, v.Student.LanguageCode) {
			t.Errorf("VoicesFor(%q) locale = %q, want %q", tt.lang, v.Teacher.LanguageCode, tt.locale)
		}
	}
}

// TestVoiceSetFor verifies unknown speakers fall back to the teacher voice.
func TestVoiceSetFor(t *testing.T) {
	v := VoicesFor("en")
	if got := v.For(script.RoleStudent); got != v.Student {
		t.Fatalf("For(student) = %+v", got)
	}
	if got := v.For(script.RoleTeacher); got != v.Teacher {
		t.Fatalf("For(teacher) = %+v", got)
	}
	if got := v.For("narrator"); got != v.Teacher {
		t.Fatalf("For(narrator) = %+v, want teacher voice", got)
	}
}

// TestEveryLanguageHasVoices keeps the voice table in step with the language menu.
func TestEveryLanguageHasVoices(t *testing.T) {
	for _, l := range script.Languages() {
		if _, ok := languageVoices[l.Code]; !ok {
			t.Errorf("no voices for %s (%s)", l.Code, l.Name)
		}
	}
}
