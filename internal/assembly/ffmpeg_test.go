package assembly

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func TestConcatEntriesDefaultSpacing(t *testing.T) {
	s := silenceFiles{lead: "lead.mp3", pause: "pause.mp3", tail: "tail.mp3"}
	got := concatEntries([]string{"0.mp3", "1.mp3"}, s, DefaultSpacing)
	want := []string{
		"file 'lead.mp3'",
		"file '0.mp3'",
		"file 'pause.mp3'",
		"file '1.mp3'",
		"file 'pause.mp3'",
		"file 'tail.mp3'",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("concatEntries =\n%v\nwant\n%v", got, want)
	}
}

func TestConcatEntriesSkipsZeroSilence(t *testing.T) {
	s := silenceFiles{lead: "lead.mp3", pause: "pause.mp3", tail: "tail.mp3"}
	got := concatEntries([]string{"0.mp3"}, s, Spacing{Tail: time.Second})
	want := []string{"file '0.mp3'", "file 'tail.mp3'"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("concatEntries = %v, want %v", got, want)
	}
}

func TestConcatLineEscapesQuotes(t *testing.T) {
	got := concatLine("/tmp/it's.mp3")
	want := `file '/tmp/it'\''s.mp3'`
	if got != want {
		t.Fatalf("concatLine = %s, want %s", got, want)
	}
}

func TestAssembleRejectsEmpty(t *testing.T) {
	a := NewFFmpegAssembler(DefaultSpacing)
	if err := a.Assemble(context.Background(), nil, t.TempDir(), "out.mp3"); err == nil {
		t.Fatal("Assemble with no segments succeeded")
	}
}
