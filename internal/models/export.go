// internal/models/export.go
package models

import "time"

// ExportResult describes a compiled script saved to disk
type ExportResult struct {
	DialogID    string       `json:"dialog_id"`
	Title       string       `json:"title"`
	Format      string       `json:"format"`
	Content     string       `json:"content"`
	GeneratedAt time.Time    `json:"generated_at"`
	FilePath    string       `json:"file_path"`
	FileSize    int64        `json:"file_size"`
	Stats       *ScriptStats `json:"stats,omitempty"`
}

// ScriptStats summarizes a compiled script for the export listing
type ScriptStats struct {
	TotalNodes      int `json:"total_nodes"`
	DialogueNodes   int `json:"dialogue_nodes"`
	SideEffectNodes int `json:"side_effect_nodes"`
	MergeNodes      int `json:"merge_nodes"`
	Variables       int `json:"variables"`
	LineCount       int `json:"line_count"`
}
