// internal/models/scene.go
package models

import "time"

// Scene is a flat record describing a backdrop a dialog plays in.
// Referenced by ID from dialog documents.
type Scene struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Atmosphere  string    `json:"atmosphere,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
