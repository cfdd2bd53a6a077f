// internal/models/node.go
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// NodeKind discriminates the dialog node union
type NodeKind string

const (
	KindDialogue         NodeKind = "dialogue"
	KindSetVariable      NodeKind = "set_variable"
	KindChangeVariable   NodeKind = "change_variable"
	KindSetBackground    NodeKind = "set_background"
	KindPlaySound        NodeKind = "play_sound"
	KindSetMusic         NodeKind = "set_music"
	KindIfStatement      NodeKind = "if_statement"
	KindSwitchCase       NodeKind = "switch_case"
	KindSceneDescription NodeKind = "scene_description"
)

// Speaker identifies who voices a dialogue line
type Speaker string

const (
	SpeakerNPC    Speaker = "npc"
	SpeakerPlayer Speaker = "player"
)

// ChangeOp is the arithmetic applied by a change_variable node
type ChangeOp string

const (
	ChangeOpAdd      ChangeOp = "add"
	ChangeOpSubtract ChangeOp = "subtract"
)

// NodeBody holds the kind-specific fields of a dialog node.
// Exactly one implementation exists per NodeKind.
type NodeBody interface {
	Kind() NodeKind
}

// DialogueBody is the only speaker-bearing node kind
type DialogueBody struct {
	Speaker     Speaker `json:"speaker"`
	Text        string  `json:"text"`
	CharacterID string  `json:"character_id,omitempty"`
	Emotion     string  `json:"emotion,omitempty"`
	ShowAvatar  bool    `json:"show_avatar,omitempty"`
}

func (DialogueBody) Kind() NodeKind { return KindDialogue }

// SetVariableBody overwrites a script variable unconditionally
type SetVariableBody struct {
	Name  string `json:"variable_name"`
	Value string `json:"value"`
}

func (SetVariableBody) Kind() NodeKind { return KindSetVariable }

// ChangeVariableBody adds to or subtracts from a numeric variable
type ChangeVariableBody struct {
	Name  string   `json:"variable_name"`
	Op    ChangeOp `json:"operation"`
	Value string   `json:"value"`
}

func (ChangeVariableBody) Kind() NodeKind { return KindChangeVariable }

// SetBackgroundBody switches the scene background image
type SetBackgroundBody struct {
	Image string `json:"image"`
}

func (SetBackgroundBody) Kind() NodeKind { return KindSetBackground }

// PlaySoundBody plays a one-shot sound effect
type PlaySoundBody struct {
	File string `json:"file"`
}

func (PlaySoundBody) Kind() NodeKind { return KindPlaySound }

// SetMusicBody starts background music with optional fades (seconds)
type SetMusicBody struct {
	File    string  `json:"file"`
	FadeIn  float64 `json:"fade_in,omitempty"`
	FadeOut float64 `json:"fade_out,omitempty"`
}

func (SetMusicBody) Kind() NodeKind { return KindSetMusic }

// IfStatementBody branches on a variable comparison.
// Children are ordered [trueBranch?, falseBranch?].
type IfStatementBody struct {
	Variable string `json:"variable"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

func (IfStatementBody) Kind() NodeKind { return KindIfStatement }

// SwitchCaseArm is a single case of a switch_case node
type SwitchCaseArm struct {
	Value  string `json:"value"`
	NodeID string `json:"node_id,omitempty"`
}

// SwitchCaseBody branches on a variable over an ordered case list
type SwitchCaseBody struct {
	Variable string          `json:"variable"`
	Cases    []SwitchCaseArm `json:"cases"`
}

func (SwitchCaseBody) Kind() NodeKind { return KindSwitchCase }

// SceneDescriptionBody carries non-spoken narrative text
type SceneDescriptionBody struct {
	Text string `json:"text"`
}

func (SceneDescriptionBody) Kind() NodeKind { return KindSceneDescription }

// Node is one element of the dialog graph. Identity fields are shared
// by every kind; Body carries the kind-specific payload.
type Node struct {
	ID        string
	ChildIDs  []string
	ParentIDs []string
	CreatedAt time.Time
	UpdatedAt time.Time
	Body      NodeBody
}

// Kind returns the discriminator of the node's body
func (n *Node) Kind() NodeKind {
	if n.Body == nil {
		return ""
	}
	return n.Body.Kind()
}

// IsDialogue reports whether the node represents a spoken line
func (n *Node) IsDialogue() bool {
	return n.Kind() == KindDialogue
}

// IsSideEffect reports whether the node mutates state or environment
// instead of speaking. Every non-dialogue kind is a side effect.
func (n *Node) IsSideEffect() bool {
	return n.Body != nil && n.Kind() != KindDialogue
}

// Dialogue returns the dialogue body, or nil for other kinds
func (n *Node) Dialogue() *DialogueBody {
	if b, ok := n.Body.(DialogueBody); ok {
		return &b
	}
	return nil
}

// nodeHeader is the wire form of the shared identity fields
type nodeHeader struct {
	ID        string    `json:"id"`
	Kind      NodeKind  `json:"kind"`
	ChildIDs  []string  `json:"child_node_ids"`
	ParentIDs []string  `json:"parent_node_ids"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MarshalJSON flattens identity fields and the kind-specific body
// into a single object discriminated by "kind".
func (n *Node) MarshalJSON() ([]byte, error) {
	merged := map[string]json.RawMessage{}

	header := nodeHeader{
		ID:        n.ID,
		Kind:      n.Kind(),
		ChildIDs:  n.ChildIDs,
		ParentIDs: n.ParentIDs,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(headerJSON, &merged); err != nil {
		return nil, err
	}

	if n.Body != nil {
		bodyJSON, err := json.Marshal(n.Body)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(bodyJSON, &merged); err != nil {
			return nil, err
		}
	}

	return json.Marshal(merged)
}

// UnmarshalJSON probes the "kind" discriminator, then decodes the
// matching body variant from the same flattened object.
func (n *Node) UnmarshalJSON(data []byte) error {
	var header nodeHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return err
	}

	n.ID = header.ID
	n.ChildIDs = header.ChildIDs
	n.ParentIDs = header.ParentIDs
	n.CreatedAt = header.CreatedAt
	n.UpdatedAt = header.UpdatedAt

	body, err := newNodeBody(header.Kind)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, body); err != nil {
		return err
	}

	// Store the value, not the pointer, so type switches stay uniform
	switch b := body.(type) {
	case *DialogueBody:
		n.Body = *b
	case *SetVariableBody:
		n.Body = *b
	case *ChangeVariableBody:
		n.Body = *b
	case *SetBackgroundBody:
		n.Body = *b
	case *PlaySoundBody:
		n.Body = *b
	case *SetMusicBody:
		n.Body = *b
	case *IfStatementBody:
		n.Body = *b
	case *SwitchCaseBody:
		n.Body = *b
	case *SceneDescriptionBody:
		n.Body = *b
	}

	return nil
}

// ParseNodeBody decodes a flattened body object discriminated by
// "kind", as submitted by editor clients
func ParseNodeBody(data []byte) (NodeBody, error) {
	var node Node
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if node.Body == nil {
		return nil, fmt.Errorf("node body is required")
	}
	return node.Body, nil
}

// newNodeBody allocates the body variant for a kind
func newNodeBody(kind NodeKind) (interface{}, error) {
	switch kind {
	case KindDialogue:
		return &DialogueBody{}, nil
	case KindSetVariable:
		return &SetVariableBody{}, nil
	case KindChangeVariable:
		return &ChangeVariableBody{}, nil
	case KindSetBackground:
		return &SetBackgroundBody{}, nil
	case KindPlaySound:
		return &PlaySoundBody{}, nil
	case KindSetMusic:
		return &SetMusicBody{}, nil
	case KindIfStatement:
		return &IfStatementBody{}, nil
	case KindSwitchCase:
		return &SwitchCaseBody{}, nil
	case KindSceneDescription:
		return &SceneDescriptionBody{}, nil
	default:
		return nil, fmt.Errorf("unknown node kind: %q", kind)
	}
}
