package script

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// DefaultTitle is shown when a generated script carries no title.
const DefaultTitle = "Your Podcast"

// Role is a speaker in the two-person conversation.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Roles returns the closed set of speaker roles.
func Roles() []Role {
	return []Role{RoleTeacher, RoleStudent}
}

// Valid reports whether r is one of Roles.
func (r Role) Valid() bool {
	return r == RoleTeacher || r == RoleStudent
}

// Script is a generated conversation. Turns keep the order they were
// generated in.
type Script struct {
	Title   string `json:"title,omitempty"`
	Summary string `json:"summary,omitempty"`
	Turns   []Turn `json:"conversation"`
}

// Turn is one line of dialogue.
type Turn struct {
	Speaker Role   `json:"speaker"`
	Text    string `json:"text"`
}

// DisplayTitle returns the title or DefaultTitle. It is safe on a nil Script.
func (s *Script) DisplayTitle() string {
	if s == nil || s.Title == "" {
		return DefaultTitle
	}
	return s.Title
}

// Generator turns document text into a script.
type Generator interface {
	Generate(ctx context.Context, content string, lang Language) (*Script, error)
}

func SaveScript(s *Script, path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal script: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write script to %s: %w", path, err)
	}
	return nil
}

func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script from %s: %w", path, err)
	}
	var s Script
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script from %s: %w", path, err)
	}
	if len(s.Turns) == 0 {
		return nil, fmt.Errorf("script %s has no conversation", path)
	}
	return &s, nil
}
