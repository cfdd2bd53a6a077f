// internal/services/script_compiler.go
package services

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Corphon/DialogWeaverMCP/internal/models"
)

// CharacterLookup resolves character records for compiled
// declarations. CharacterService implements it; tests stub it.
type CharacterLookup interface {
	GetCharacter(id string) (*models.Character, error)
}

// ScriptCompiler converts a rooted dialog graph into linear script
// text in the branching dialect: character declarations, a start
// label with variable initialization, menu blocks for player fan-out,
// if/elif/else chains for branch nodes, and label/jump pairs for
// merge nodes. Compilation takes a read-only view of the graph,
// never aborts on a malformed subgraph, and always yields
// syntactically valid output for a graph with a valid root.
type ScriptCompiler struct{}

// NewScriptCompiler creates a compiler
func NewScriptCompiler() *ScriptCompiler {
	return &ScriptCompiler{}
}

const scriptIndent = "    "

// Compile emits the script for the graph. A rootless graph compiles
// to an empty-but-valid document.
func (c *ScriptCompiler) Compile(graph *models.DialogGraph, chars CharacterLookup) (string, *models.ScriptStats) {
	e := &emitter{
		graph:         graph,
		chars:         chars,
		labels:        make(map[string]string),
		labelNames:    make(map[string]bool),
		effectEmitted: make(map[string]bool),
		charVars:      make(map[string]string),
	}
	return e.compile()
}

// emitter is the per-invocation emission context. It replaces the
// original design's shared mutable globals: every "already emitted"
// set lives here and dies with the compile call.
type emitter struct {
	graph *models.DialogGraph
	chars CharacterLookup

	b     strings.Builder
	lines int

	labels     map[string]string // merge node ID -> label name
	labelOrder []string          // merge node IDs in discovery order
	labelNames map[string]bool   // claimed label names

	effectEmitted map[string]bool // compile-wide side-effect dedup

	charVars   map[string]string // character ID -> script identifier
	charOrder  []string          // character IDs sorted by identifier
	playerSeen bool

	variables []string

	stats models.ScriptStats
}

// walkState is the bookkeeping of one depth-first walk. The main
// flow and every label body get their own instance so a label block
// is never skipped by another walk's visited state.
type walkState struct {
	stack    map[string]bool // active traversal stack, cycle guard
	defining string          // merge node whose label body this walk defines
}

func newWalkState(defining string) *walkState {
	return &walkState{
		stack:    make(map[string]bool),
		defining: defining,
	}
}

func (e *emitter) compile() (string, *models.ScriptStats) {
	rootID := ResolveRoot(e.graph)
	if rootID == "" {
		e.line(0, "# empty dialog graph")
		e.line(0, "label start:")
		e.line(1, "return")
		e.stats.LineCount = e.lines
		return e.b.String(), &e.stats
	}

	reachable := e.collectReachable(rootID)
	e.collectVariables(reachable)
	e.collectCharacters(reachable)
	e.collectMergeNodes(reachable, rootID)
	e.collectStats(reachable)

	declared := false
	for _, charID := range e.charOrder {
		character, err := e.chars.GetCharacter(charID)
		if err != nil || character == nil {
			continue
		}
		e.linef(0, "define %s = Character(\"%s\")", e.charVars[charID], escapeString(character.Name))
		declared = true
	}
	if e.playerSeen {
		e.line(0, `define player = Character("You")`)
		declared = true
	}
	if declared {
		e.blank()
	}

	e.line(0, "label start:")
	for _, name := range e.variables {
		e.linef(1, "$ %s = 0", name)
	}

	root := e.graph.Node(rootID)
	if !e.walkNode(root, 1, newWalkState("")) {
		e.line(1, "return")
	}

	// Merge-node bodies as separate top-level blocks, each with its
	// own walk state so the main flow's bookkeeping cannot skip them
	for _, nodeID := range e.labelOrder {
		node := e.graph.Node(nodeID)
		if node == nil {
			continue
		}
		e.blank()
		e.linef(0, "label %s:", e.labels[nodeID])
		if !e.walkNode(node, 1, newWalkState(nodeID)) {
			e.line(1, "return")
		}
	}

	e.stats.LineCount = e.lines
	return e.b.String(), &e.stats
}

// ------------------------------------------------
// Discovery phases
// ------------------------------------------------

// collectReachable walks every node reachable from the root (child
// edges plus switch arm targets) in a deterministic preorder.
func (e *emitter) collectReachable(rootID string) []*models.Node {
	var order []*models.Node
	visited := make(map[string]bool)

	var walk func(id string)
	walk = func(id string) {
		node := e.graph.Node(id)
		if node == nil || visited[id] {
			return
		}
		visited[id] = true
		order = append(order, node)

		for _, childID := range node.ChildIDs {
			walk(childID)
		}
		if body, ok := node.Body.(models.SwitchCaseBody); ok {
			for _, arm := range body.Cases {
				if arm.NodeID != "" {
					walk(arm.NodeID)
				}
			}
		}
	}

	walk(rootID)
	return order
}

// collectVariables gathers every variable referenced by set_variable,
// if_statement, or switch_case nodes, so conditionals never touch an
// undefined name. Sorted for stable output.
func (e *emitter) collectVariables(reachable []*models.Node) {
	seen := make(map[string]bool)
	for _, node := range reachable {
		var name string
		switch body := node.Body.(type) {
		case models.SetVariableBody:
			name = body.Name
		case models.IfStatementBody:
			name = body.Variable
		case models.SwitchCaseBody:
			name = body.Variable
		}
		if name == "" {
			continue
		}
		sanitized := sanitizeIdentifier(name, "var")
		if !seen[sanitized] {
			seen[sanitized] = true
			e.variables = append(e.variables, sanitized)
		}
	}
	sort.Strings(e.variables)
}

// collectCharacters assigns a script identifier to every character
// referenced by a reachable NPC line
func (e *emitter) collectCharacters(reachable []*models.Node) {
	claimed := map[string]bool{"player": true, "start": true}

	for _, node := range reachable {
		dialogue := node.Dialogue()
		if dialogue == nil {
			continue
		}
		if dialogue.Speaker == models.SpeakerPlayer {
			e.playerSeen = true
			continue
		}
		if dialogue.CharacterID == "" {
			continue
		}
		if _, ok := e.charVars[dialogue.CharacterID]; ok {
			continue
		}

		character, err := e.chars.GetCharacter(dialogue.CharacterID)
		if err != nil || character == nil {
			continue
		}

		identifier := sanitizeIdentifier(character.Name, "char")
		base := identifier
		for i := 2; claimed[identifier]; i++ {
			identifier = fmt.Sprintf("%s_%d", base, i)
		}
		claimed[identifier] = true
		e.charVars[dialogue.CharacterID] = identifier
		e.charOrder = append(e.charOrder, dialogue.CharacterID)
	}

	sort.Slice(e.charOrder, func(i, j int) bool {
		return e.charVars[e.charOrder[i]] < e.charVars[e.charOrder[j]]
	})
}

// collectMergeNodes assigns a unique, sanitized label to every
// dialogue node with more than one live parent. The root counts its
// start-of-flow entry as an arrival, so a loop back to the root also
// makes it a merge node.
func (e *emitter) collectMergeNodes(reachable []*models.Node, rootID string) {
	for _, node := range reachable {
		if !node.IsDialogue() {
			continue
		}
		parents := 0
		for _, parentID := range node.ParentIDs {
			if e.graph.Node(parentID) != nil {
				parents++
			}
		}
		if node.ID == rootID && parents > 0 {
			parents++
		}
		if parents <= 1 {
			continue
		}

		base := sanitizeIdentifier(truncate(node.Dialogue().Text, 24), "")
		if base == "" {
			base = sanitizeIdentifier(truncate(node.ID, 8), "node")
		}
		label := "label_" + base
		for i := 2; e.labelNames[label]; i++ {
			label = fmt.Sprintf("label_%s_%d", base, i)
		}
		e.labelNames[label] = true
		e.labels[node.ID] = label
		e.labelOrder = append(e.labelOrder, node.ID)
	}
}

func (e *emitter) collectStats(reachable []*models.Node) {
	e.stats.TotalNodes = len(reachable)
	for _, node := range reachable {
		if node.IsDialogue() {
			e.stats.DialogueNodes++
		} else {
			e.stats.SideEffectNodes++
		}
	}
	e.stats.MergeNodes = len(e.labels)
	e.stats.Variables = len(e.variables)
}

// ------------------------------------------------
// Depth-first emission
// ------------------------------------------------

// walkNode dispatches on node kind. The returned flag reports whether
// emission ended in an unconditional jump, which suppresses the
// trailing return of the enclosing block.
func (e *emitter) walkNode(node *models.Node, indent int, st *walkState) bool {
	if node == nil {
		return false
	}

	switch body := node.Body.(type) {
	case models.DialogueBody:
		return e.walkDialogue(node, body, indent, st)
	case models.IfStatementBody:
		return e.walkIf(node, body, indent, st)
	case models.SwitchCaseBody:
		return e.walkSwitch(node, body, indent, st)
	default:
		e.emitEffect(node, indent)
		return e.walkContinuation(node, indent, st)
	}
}

func (e *emitter) walkDialogue(node *models.Node, body models.DialogueBody, indent int, st *walkState) bool {
	// Merge nodes are reached by jump everywhere except the single
	// canonical definition walk of their label body
	if label, ok := e.labels[node.ID]; ok && st.defining != node.ID {
		e.linef(indent, "jump %s", label)
		return true
	}
	if st.defining == node.ID {
		// Only the entry of the definition walk inlines; any cycle
		// back to this node from inside the body jumps
		st.defining = ""
	}

	// A node already on the active stack without a merge label means
	// an authored loop the merge pass could not express; degrade
	if st.stack[node.ID] {
		e.linef(indent, "# loop back to \"%s\"", escapeString(truncate(body.Text, 32)))
		return false
	}
	st.stack[node.ID] = true
	defer delete(st.stack, node.ID)

	if body.Speaker == models.SpeakerPlayer {
		if e.isLinearContinuation(node) || st.defining == "" && e.labels[node.ID] != "" {
			e.linef(indent, "player \"%s\"", escapeString(body.Text))
		} else {
			// Ambiguous provenance: a bare player line that is not the
			// sole continuation of its parent cannot be safely inlined
			e.linef(indent, "# player: \"%s\"", escapeString(body.Text))
		}
		return e.walkContinuation(node, indent, st)
	}

	e.emitBackgroundBefore(node, body, indent)

	speaker := e.charVars[body.CharacterID]
	if body.ShowAvatar && body.Emotion != "" && speaker != "" {
		e.linef(indent, "show %s %s", speaker, sanitizeIdentifier(body.Emotion, "neutral"))
	}
	if speaker != "" {
		e.linef(indent, "%s \"%s\"", speaker, escapeString(body.Text))
	} else {
		e.linef(indent, "\"%s\"", escapeString(body.Text))
	}

	return e.walkContinuation(node, indent, st)
}

// walkContinuation processes a node's children: immediate side
// effects first in child order (descending through effect chains),
// then branch nodes, then the dialogue fan-out rules.
func (e *emitter) walkContinuation(node *models.Node, indent int, st *walkState) bool {
	var dialogues, branches []*models.Node
	chainSeen := map[string]bool{node.ID: true}

	for _, childID := range node.ChildIDs {
		child := e.graph.Node(childID)
		if child == nil {
			continue // dangling reference, skipped
		}
		switch child.Body.(type) {
		case models.DialogueBody:
			dialogues = append(dialogues, child)
		case models.IfStatementBody, models.SwitchCaseBody:
			branches = append(branches, child)
		default:
			e.emitEffectChain(child, indent, &dialogues, &branches, chainSeen)
		}
	}

	for _, branch := range branches {
		e.walkNode(branch, indent, st)
	}

	switch {
	case len(dialogues) == 0:
		return false
	case len(dialogues) == 1:
		return e.walkNode(dialogues[0], indent, st)
	}

	allPlayer := true
	for _, d := range dialogues {
		if d.Dialogue().Speaker != models.SpeakerPlayer {
			allPlayer = false
			break
		}
	}
	if allPlayer {
		e.emitMenu(dialogues, indent, st)
		return false
	}

	// Mixed fan-out has no single safe linearization; emit in child
	// order and let the player-line provenance rule annotate
	ended := false
	for _, d := range dialogues {
		ended = e.walkNode(d, indent, st)
	}
	return ended
}

// emitMenu collapses player fan-out into a choice menu. Each choice
// recurses into that player node's own children.
func (e *emitter) emitMenu(choices []*models.Node, indent int, st *walkState) {
	e.line(indent, "menu:")
	for _, choice := range choices {
		e.linef(indent+1, "\"%s\":", escapeString(choice.Dialogue().Text))

		if label, ok := e.labels[choice.ID]; ok {
			e.linef(indent+2, "jump %s", label)
			continue
		}
		if st.stack[choice.ID] {
			e.line(indent+2, "pass")
			continue
		}

		st.stack[choice.ID] = true
		before := e.lines
		e.walkContinuation(choice, indent+2, st)
		delete(st.stack, choice.ID)

		if e.lines == before {
			e.line(indent+2, "pass")
		}
	}
}

// emitEffectChain emits one side-effect node and follows consecutive
// side-effect children (effect-of-effect chains), gathering any
// dialogue or branch continuation found beneath them.
func (e *emitter) emitEffectChain(node *models.Node, indent int, dialogues, branches *[]*models.Node, seen map[string]bool) {
	if seen[node.ID] {
		return
	}
	seen[node.ID] = true

	e.emitEffect(node, indent)

	for _, childID := range node.ChildIDs {
		child := e.graph.Node(childID)
		if child == nil {
			continue
		}
		switch child.Body.(type) {
		case models.DialogueBody:
			*dialogues = append(*dialogues, child)
		case models.IfStatementBody, models.SwitchCaseBody:
			*branches = append(*branches, child)
		default:
			e.emitEffectChain(child, indent, dialogues, branches, seen)
		}
	}
}

// emitEffect writes the immediate statement for a side-effect node.
// The compile-wide emitted flag keeps a node visited via more than
// one traversal branch from being duplicated in output.
func (e *emitter) emitEffect(node *models.Node, indent int) {
	if e.effectEmitted[node.ID] {
		return
	}
	e.effectEmitted[node.ID] = true

	switch body := node.Body.(type) {
	case models.SetVariableBody:
		if body.Name == "" {
			e.line(indent, "# set variable skipped (missing name)")
			return
		}
		e.linef(indent, "$ %s = %s", sanitizeIdentifier(body.Name, "var"), formatValue(body.Value))

	case models.ChangeVariableBody:
		if body.Name == "" {
			e.line(indent, "# change variable skipped (missing name)")
			return
		}
		delta, err := strconv.ParseFloat(body.Value, 64)
		if err != nil {
			e.linef(indent, "# change %s skipped (non-numeric value %q)", sanitizeIdentifier(body.Name, "var"), body.Value)
			return
		}
		op := "+="
		if body.Op == models.ChangeOpSubtract {
			op = "-="
		}
		e.linef(indent, "$ %s %s %s", sanitizeIdentifier(body.Name, "var"), op, formatNumber(delta))

	case models.SetBackgroundBody:
		e.linef(indent, "scene %s", sanitizeIdentifier(body.Image, "bg"))

	case models.PlaySoundBody:
		e.linef(indent, "play sound \"%s\"", escapeString(body.File))

	case models.SetMusicBody:
		stmt := fmt.Sprintf("play music \"%s\"", escapeString(body.File))
		if body.FadeIn > 0 {
			stmt += fmt.Sprintf(" fadein %s", formatNumber(body.FadeIn))
		}
		if body.FadeOut > 0 {
			stmt += fmt.Sprintf(" fadeout %s", formatNumber(body.FadeOut))
		}
		e.line(indent, stmt)

	case models.SceneDescriptionBody:
		e.linef(indent, "# %s", strings.ReplaceAll(body.Text, "\n", " "))
	}
}

// emitBackgroundBefore hoists an unemitted background change ahead of
// an NPC line that shows an avatar with an emotion. Scanned sources:
// the node's own side-effect children, then the side-effect children
// of the previous NPC turn (parent's parent when the immediate parent
// is a player line).
func (e *emitter) emitBackgroundBefore(node *models.Node, body models.DialogueBody, indent int) {
	if !body.ShowAvatar || body.Emotion == "" {
		return
	}

	if e.emitFirstBackground(node.ChildIDs, indent) {
		return
	}

	for _, parentID := range node.ParentIDs {
		parent := e.graph.Node(parentID)
		if parent == nil {
			continue
		}
		dialogue := parent.Dialogue()
		if dialogue == nil || dialogue.Speaker != models.SpeakerPlayer {
			continue
		}
		for _, grandID := range parent.ParentIDs {
			grand := e.graph.Node(grandID)
			if grand == nil || grand.Dialogue() == nil {
				continue
			}
			if grand.Dialogue().Speaker != models.SpeakerNPC {
				continue
			}
			if e.emitFirstBackground(grand.ChildIDs, indent) {
				return
			}
		}
	}
}

func (e *emitter) emitFirstBackground(childIDs []string, indent int) bool {
	for _, id := range childIDs {
		child := e.graph.Node(id)
		if child == nil || e.effectEmitted[id] {
			continue
		}
		if _, ok := child.Body.(models.SetBackgroundBody); ok {
			e.emitEffect(child, indent)
			return true
		}
	}
	return false
}

func (e *emitter) walkIf(node *models.Node, body models.IfStatementBody, indent int, st *walkState) bool {
	// Branch nodes carry the same cycle guard as dialogue nodes: a
	// conditional loop that never passes through a spoken line would
	// otherwise recurse without bound
	if st.stack[node.ID] {
		e.linef(indent, "# loop back to condition on %s", sanitizeIdentifier(body.Variable, "var"))
		return false
	}
	st.stack[node.ID] = true
	defer delete(st.stack, node.ID)

	var trueBranch, falseBranch *models.Node
	if len(node.ChildIDs) > 0 {
		trueBranch = e.graph.Node(node.ChildIDs[0])
	}
	if len(node.ChildIDs) > 1 {
		falseBranch = e.graph.Node(node.ChildIDs[1])
	}

	// Absent branches emit nothing
	if trueBranch == nil && falseBranch == nil {
		return false
	}

	cond := fmt.Sprintf("if %s %s %s:", sanitizeIdentifier(body.Variable, "var"),
		formatOperator(body.Operator), formatValue(body.Value))

	e.line(indent, cond)
	if trueBranch != nil {
		e.walkBranchBody(trueBranch, indent+1, st)
	} else {
		// Keep the block well-formed when only the else arm exists
		e.line(indent+1, "pass")
	}

	if falseBranch != nil {
		e.line(indent, "else:")
		e.walkBranchBody(falseBranch, indent+1, st)
	}
	return false
}

func (e *emitter) walkSwitch(node *models.Node, body models.SwitchCaseBody, indent int, st *walkState) bool {
	if st.stack[node.ID] {
		e.linef(indent, "# loop back to condition on %s", sanitizeIdentifier(body.Variable, "var"))
		return false
	}
	st.stack[node.ID] = true
	defer delete(st.stack, node.ID)

	children := make([]*models.Node, 0, len(node.ChildIDs))
	for _, id := range node.ChildIDs {
		if child := e.graph.Node(id); child != nil {
			children = append(children, child)
		}
	}

	if len(body.Cases) == 0 {
		// Degenerate switch: no clauses to emit, continue inline
		if len(children) > 0 {
			return e.walkNode(children[0], indent, st)
		}
		return false
	}

	variable := sanitizeIdentifier(body.Variable, "var")
	for i, arm := range body.Cases {
		keyword := "if"
		if i > 0 {
			keyword = "elif"
		}
		e.linef(indent, "%s %s == %s:", keyword, variable, formatValue(arm.Value))

		branch := e.switchBranch(arm, children, i)
		if branch != nil {
			e.walkBranchBody(branch, indent+1, st)
		} else {
			e.line(indent+1, "pass")
		}
	}

	// More children than declared cases: the extra child is the
	// implicit else branch
	if len(children) > len(body.Cases) {
		e.line(indent, "else:")
		e.walkBranchBody(children[len(body.Cases)], indent+1, st)
	}
	return false
}

func (e *emitter) switchBranch(arm models.SwitchCaseArm, children []*models.Node, index int) *models.Node {
	if arm.NodeID != "" {
		if node := e.graph.Node(arm.NodeID); node != nil {
			return node
		}
		return nil
	}
	if index < len(children) {
		return children[index]
	}
	return nil
}

// walkBranchBody walks a conditional arm, inserting a placeholder
// when the arm produced no statements so the block stays well-formed
func (e *emitter) walkBranchBody(node *models.Node, indent int, st *walkState) {
	before := e.lines
	e.walkNode(node, indent, st)
	if e.lines == before {
		e.line(indent, "pass")
	}
}

// isLinearContinuation reports whether a player node is the sole
// dialogue-kind child of its unique parent, i.e. a genuine linear
// continuation that may be spoken inline
func (e *emitter) isLinearContinuation(node *models.Node) bool {
	var parent *models.Node
	for _, parentID := range node.ParentIDs {
		p := e.graph.Node(parentID)
		if p == nil {
			continue
		}
		if parent != nil {
			return false // multiple live parents
		}
		parent = p
	}
	if parent == nil {
		// A parentless player node (e.g. the root) reads linearly
		return true
	}

	dialogueChildren := 0
	for _, childID := range parent.ChildIDs {
		child := e.graph.Node(childID)
		if child != nil && child.IsDialogue() {
			dialogueChildren++
		}
	}
	return dialogueChildren == 1
}

// ------------------------------------------------
// Text helpers
// ------------------------------------------------

func (e *emitter) line(indent int, text string) {
	e.b.WriteString(strings.Repeat(scriptIndent, indent))
	e.b.WriteString(text)
	e.b.WriteString("\n")
	e.lines++
}

func (e *emitter) linef(indent int, format string, args ...interface{}) {
	e.line(indent, fmt.Sprintf(format, args...))
}

func (e *emitter) blank() {
	e.b.WriteString("\n")
}

// sanitizeIdentifier maps arbitrary text to the safe identifier
// charset: lowercase, non-alphanumeric runs collapse to a single
// underscore, no leading digit.
func sanitizeIdentifier(text, fallback string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	result := strings.Trim(b.String(), "_")
	if result == "" {
		return fallback
	}
	if result[0] >= '0' && result[0] <= '9' {
		result = "n" + result
	}
	return result
}

// formatValue renders an authored value: numbers stay bare, anything
// that fails numeric parsing is treated as a string literal.
func formatValue(value string) string {
	if num, err := strconv.ParseFloat(value, 64); err == nil {
		return formatNumber(num)
	}
	return "\"" + escapeString(value) + "\""
}

func formatNumber(num float64) string {
	return strconv.FormatFloat(num, 'f', -1, 64)
}

func formatOperator(op string) string {
	switch op {
	case "", "=", "==", "equals", "equal":
		return "=="
	case "!=", "not_equals", "not_equal":
		return "!="
	case ">", "greater_than":
		return ">"
	case "<", "less_than":
		return "<"
	case ">=", "greater_or_equal":
		return ">="
	case "<=", "less_or_equal":
		return "<="
	default:
		return op
	}
}

func escapeString(text string) string {
	replacer := strings.NewReplacer(
		"\\", "\\\\",
		"\"", "\\\"",
		"\n", "\\n",
	)
	return replacer.Replace(text)
}

// truncate shortens text to max runes, never splitting a multi-byte
// character
func truncate(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
