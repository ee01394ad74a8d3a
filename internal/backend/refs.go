package backend

import (
	"crypto/rand"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/apresai/pdfcast/internal/artifact"
)

const audioSuffix = "_podcast.mp3"

var (
	unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)
	refPattern  = regexp.MustCompile(`^[0-9A-HJKMNP-TV-Z]{26}-[A-Za-z0-9_.-]+$`)
)

// SecureFilename reduces name to a safe ASCII file name with no directory
// part. Accents are folded, whitespace becomes underscores and anything else
// outside [A-Za-z0-9_.-] is dropped.
func SecureFilename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = norm.NFKD.String(name)
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeChars.ReplaceAllString(name, "")
	name = strings.Trim(name, "._")
	if name == "" {
		return "document.pdf"
	}
	return name
}

func newID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generate ulid: %w", err)
	}
	return id.String(), nil
}

// NewDocumentRef returns a fresh reference for an uploaded file.
func NewDocumentRef(name string) (artifact.DocumentRef, error) {
	id, err := newID()
	if err != nil {
		return "", err
	}
	return artifact.DocumentRef(id + "-" + SecureFilename(name)), nil
}

// AudioRefFor names the episode rendered from doc: the document's stem with
// "_podcast.mp3" appended. Without a document a fresh "podcast" ref is used.
func AudioRefFor(doc artifact.DocumentRef) (artifact.AudioRef, error) {
	if doc == "" || !ValidRef(string(doc)) {
		id, err := newID()
		if err != nil {
			return "", err
		}
		return artifact.AudioRef(id + "-podcast" + audioSuffix), nil
	}
	s := string(doc)
	return artifact.AudioRef(strings.TrimSuffix(s, filepath.Ext(s)) + audioSuffix), nil
}

// ValidRef reports whether ref has the shape produced by this package. Refs
// that fail never reach a Store.
func ValidRef(ref string) bool {
	return refPattern.MatchString(ref) && !strings.Contains(ref, "..")
}

// DisplayName strips the ID prefix from ref for use as a download filename.
func DisplayName(ref string) string {
	if ValidRef(ref) {
		return ref[ulid.EncodedSize+1:]
	}
	return ref
}

func uploadKey(ref artifact.DocumentRef) string { return "uploads/" + string(ref) }
func audioKey(ref artifact.AudioRef) string { return "audio/" + string(ref) }
