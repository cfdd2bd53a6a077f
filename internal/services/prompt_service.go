// internal/services/prompt_service.go
package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Corphon/DialogWeaverMCP/internal/errors"
	"github.com/Corphon/DialogWeaverMCP/internal/llm"
	"github.com/Corphon/DialogWeaverMCP/internal/models"
)

// PromptService assembles AI completion requests from graph state.
// It only builds requests; issuing them is the caller's concern, and
// results re-enter the editor as ordinary node mutations.
type PromptService struct {
	characters *CharacterService
	scenes     *SceneService
}

// NewPromptService creates the prompt service
func NewPromptService(characters *CharacterService, scenes *SceneService) *PromptService {
	return &PromptService{characters: characters, scenes: scenes}
}

// BuildContinuationRequest builds a completion request asking for the
// next line from a given node, carrying the dialogue leading up to it,
// the variable state at that point, and any scene descriptions on the
// path.
func (s *PromptService) BuildContinuationRequest(dialog *models.Dialog, graph *models.DialogGraph, nodeID string) (*llm.CompletionRequest, error) {
	history := GetConversationHistory(graph, nodeID)
	variables := CalculateVariables(graph, nodeID)
	descriptions := CollectSceneDescriptions(graph, nodeID)

	var sb strings.Builder

	if len(descriptions) > 0 {
		sb.WriteString("Scene:\n")
		for _, desc := range descriptions {
			sb.WriteString("  ")
			sb.WriteString(desc)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if len(variables) > 0 {
		sb.WriteString("Story state:\n")
		names := make([]string, 0, len(variables))
		for name := range variables {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&sb, "  %s = %v\n", name, variables[name])
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Conversation so far:\n")
	for _, node := range history {
		body := node.Dialogue()
		if body == nil {
			continue
		}
		fmt.Fprintf(&sb, "%s: %s\n", s.speakerName(dialog, body), body.Text)
	}
	sb.WriteString("\nContinue the conversation with the character's next line.")

	return &llm.CompletionRequest{
		Prompt:       sb.String(),
		SystemPrompt: s.systemPrompt(dialog),
		MaxTokens:    300,
		Temperature:  0.8,
	}, nil
}

// BuildEmotionRequest builds a completion request asking for the
// emotion behind a specific dialogue line, for populating the line's
// emotion field
func (s *PromptService) BuildEmotionRequest(dialog *models.Dialog, graph *models.DialogGraph, nodeID string) (*llm.CompletionRequest, error) {
	node := graph.Node(nodeID)
	if node == nil {
		return nil, errors.NewNotFoundError(fmt.Sprintf("node not found: %s", nodeID), nil)
	}
	body := node.Dialogue()
	if body == nil {
		return nil, errors.NewValidationError("emotion analysis requires a dialogue node", nil)
	}

	var sb strings.Builder
	history := GetConversationHistory(graph, nodeID)
	if len(history) > 1 {
		sb.WriteString("Conversation context:\n")
		for _, prev := range history[:len(history)-1] {
			if b := prev.Dialogue(); b != nil {
				fmt.Fprintf(&sb, "%s: %s\n", s.speakerName(dialog, b), b.Text)
			}
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Line: %q\n\nName the single dominant emotion of this line in one lowercase word.", body.Text)

	return &llm.CompletionRequest{
		Prompt:       sb.String(),
		SystemPrompt: "You classify the emotion of game dialogue lines. Answer with one word such as happy, angry, sad, afraid, surprised or neutral.",
		MaxTokens:    10,
		Temperature:  0,
	}, nil
}

// systemPrompt describes the character being written for, falling back
// to a generic instruction when the dialog has no character attached
func (s *PromptService) systemPrompt(dialog *models.Dialog) string {
	var sb strings.Builder
	sb.WriteString("You are writing branching game dialogue. Reply with a single spoken line, no stage directions.")

	if dialog == nil || dialog.CharacterID == "" {
		return sb.String()
	}
	character, err := s.characters.GetCharacter(dialog.CharacterID)
	if err != nil {
		return sb.String()
	}

	fmt.Fprintf(&sb, "\nYou speak as %s.", character.Name)
	if character.Personality != "" {
		fmt.Fprintf(&sb, " Personality: %s.", character.Personality)
	}
	if character.SpeechStyle != "" {
		fmt.Fprintf(&sb, " Speech style: %s.", character.SpeechStyle)
	}

	if dialog.SceneID != "" {
		if scene, err := s.scenes.GetScene(dialog.SceneID); err == nil {
			fmt.Fprintf(&sb, "\nSetting: %s.", scene.Name)
			if scene.Atmosphere != "" {
				fmt.Fprintf(&sb, " Atmosphere: %s.", scene.Atmosphere)
			}
		}
	}
	return sb.String()
}

// speakerName resolves a dialogue line's display name for the prompt
func (s *PromptService) speakerName(dialog *models.Dialog, body *models.DialogueBody) string {
	if body.Speaker == models.SpeakerPlayer {
		return "Player"
	}
	if dialog != nil && dialog.CharacterID != "" {
		if character, err := s.characters.GetCharacter(dialog.CharacterID); err == nil {
			return character.Name
		}
	}
	return "NPC"
}
