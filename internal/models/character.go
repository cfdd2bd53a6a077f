// internal/models/character.go
package models

import "time"

// Character is a flat record owned by external storage and referenced
// by ID from dialogue nodes. Name and personality feed compiled
// character declarations and AI prompts verbatim (escaped).
type Character struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Personality string    `json:"personality,omitempty"`
	SpeechStyle string    `json:"speech_style,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
