// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"fmt"
	"strings"
	"unicode"
)

// Condition is a parsed step condition expression. Conditions gate a
// step on the run's aggregate status and on individual prior step
// outcomes, which is how an upload step can run after a tolerated
// failure ("always() && steps.prepare.outcome == 'success'") while a
// plain step is skipped once a required step has failed.
//
// Grammar:
//
//	expr   := or
//	or     := and ("||" and)*
//	and    := unary ("&&" unary)*
//	unary  := "!" unary | primary
//	primary:= "(" expr ")"
//	       | "success" "(" ")" | "failure" "(" ")"
//	       | "always" "(" ")"  | "cancelled" "(" ")"
//	       | "steps" "." <id> "." "outcome" ("==" | "!=") "'" <string> "'"
type Condition struct {
	root condNode
	// Source is the original expression text.
	Source string
}

// RunState is the evaluation context for a condition: the run's
// aggregate status and the outcomes of steps executed so far.
type RunState interface {
	// Failed reports whether a required step has failed.
	Failed() bool

	// Cancelled reports whether the run has been cancelled.
	Cancelled() bool

	// StepOutcome returns the outcome ("success", "failure",
	// "skipped", "cancelled") of the step with the given ID, and
	// whether that step has a recorded outcome yet.
	StepOutcome(id string) (string, bool)
}

// DefaultCondition is the implicit condition of a step with no if
// expression: run while nothing required has failed.
const DefaultCondition = "success()"

// ParseCondition parses a condition expression. An empty expression
// parses as DefaultCondition.
func ParseCondition(expression string) (*Condition, error) {
	source := expression
	if strings.TrimSpace(expression) == "" {
		source = DefaultCondition
	}

	parser := &condParser{input: source}
	root, err := parser.parseOr()
	if err != nil {
		return nil, fmt.Errorf("condition %q: %w", source, err)
	}
	parser.skipSpace()
	if parser.pos != len(parser.input) {
		return nil, fmt.Errorf("condition %q: unexpected %q at position %d", source, parser.rest(), parser.pos)
	}

	return &Condition{root: root, Source: source}, nil
}

// Evaluate returns the condition's value against the given run state.
// Returns an error when the expression references a step that has no
// recorded outcome (unknown ID, or a step that has not run yet).
func (c *Condition) Evaluate(state RunState) (bool, error) {
	return c.root.eval(state)
}

// StepRefs returns the step IDs referenced by the expression, for
// validation against the workflow's declared steps.
func (c *Condition) StepRefs() []string {
	var refs []string
	c.root.collectRefs(&refs)
	return refs
}

// condNode is a node in the parsed expression tree.
type condNode interface {
	eval(state RunState) (bool, error)
	collectRefs(refs *[]string)
}

type condBinary struct {
	op          string // "&&" or "||"
	left, right condNode
}

func (n *condBinary) eval(state RunState) (bool, error) {
	left, err := n.left.eval(state)
	if err != nil {
		return false, err
	}
	// Short-circuit.
	if n.op == "&&" && !left {
		return false, nil
	}
	if n.op == "||" && left {
		return true, nil
	}
	return n.right.eval(state)
}

func (n *condBinary) collectRefs(refs *[]string) {
	n.left.collectRefs(refs)
	n.right.collectRefs(refs)
}

type condNot struct {
	inner condNode
}

func (n *condNot) eval(state RunState) (bool, error) {
	value, err := n.inner.eval(state)
	if err != nil {
		return false, err
	}
	return !value, nil
}

func (n *condNot) collectRefs(refs *[]string) { n.inner.collectRefs(refs) }

type condCall struct {
	name string // "success", "failure", "always", "cancelled"
}

func (n *condCall) eval(state RunState) (bool, error) {
	switch n.name {
	case "success":
		return !state.Failed() && !state.Cancelled(), nil
	case "failure":
		return state.Failed(), nil
	case "cancelled":
		return state.Cancelled(), nil
	case "always":
		return true, nil
	}
	return false, fmt.Errorf("unknown function %q", n.name)
}

func (n *condCall) collectRefs(*[]string) {}

type condCompare struct {
	stepID string
	op     string // "==" or "!="
	value  string
}

func (n *condCompare) eval(state RunState) (bool, error) {
	outcome, exists := state.StepOutcome(n.stepID)
	if !exists {
		return false, fmt.Errorf("step %q has no recorded outcome", n.stepID)
	}
	if n.op == "==" {
		return outcome == n.value, nil
	}
	return outcome != n.value, nil
}

func (n *condCompare) collectRefs(refs *[]string) {
	*refs = append(*refs, n.stepID)
}

// condParser is a recursive-descent parser over the expression text.
type condParser struct {
	input string
	pos   int
}

func (p *condParser) parseOr() (condNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.consume("||") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &condBinary{op: "||", left: left, right: right}
	}
	return left, nil
}

func (p *condParser) parseAnd() (condNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.consume("&&") {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &condBinary{op: "&&", left: left, right: right}
	}
	return left, nil
}

func (p *condParser) parseUnary() (condNode, error) {
	if p.consume("!") {
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &condNot{inner: inner}, nil
	}
	return p.parsePrimary()
}

func (p *condParser) parsePrimary() (condNode, error) {
	if p.consume("(") {
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.consume(")") {
			return nil, fmt.Errorf("missing closing parenthesis at position %d", p.pos)
		}
		return inner, nil
	}

	identifier, err := p.parseIdentifier()
	if err != nil {
		return nil, err
	}

	switch identifier {
	case "success", "failure", "always", "cancelled":
		if !p.consume("(") || !p.consume(")") {
			return nil, fmt.Errorf("%s must be called as %s()", identifier, identifier)
		}
		return &condCall{name: identifier}, nil

	case "steps":
		return p.parseStepComparison()
	}

	return nil, fmt.Errorf("unknown identifier %q (expected success(), failure(), always(), cancelled(), or steps.<id>.outcome)", identifier)
}

// parseStepComparison parses ".<id>.outcome (==|!=) '<value>'" after
// the "steps" keyword has been consumed.
func (p *condParser) parseStepComparison() (condNode, error) {
	if !p.consume(".") {
		return nil, fmt.Errorf("expected '.' after steps at position %d", p.pos)
	}
	stepID, err := p.parseIdentifier()
	if err != nil {
		return nil, fmt.Errorf("expected step ID after steps.: %w", err)
	}
	if !p.consume(".") {
		return nil, fmt.Errorf("expected '.' after steps.%s at position %d", stepID, p.pos)
	}
	property, err := p.parseIdentifier()
	if err != nil {
		return nil, err
	}
	if property != "outcome" {
		return nil, fmt.Errorf("unknown step property %q (only outcome is supported)", property)
	}

	var op string
	switch {
	case p.consume("=="):
		op = "=="
	case p.consume("!="):
		op = "!="
	default:
		return nil, fmt.Errorf("expected == or != after steps.%s.outcome at position %d", stepID, p.pos)
	}

	value, err := p.parseString()
	if err != nil {
		return nil, err
	}

	return &condCompare{stepID: stepID, op: op, value: value}, nil
}

// parseIdentifier reads a letter/underscore-initial run of letters,
// digits, underscores, and dashes (dashes occur in step IDs).
func (p *condParser) parseIdentifier() (string, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.input) {
		ch := rune(p.input[p.pos])
		if unicode.IsLetter(ch) || ch == '_' || (p.pos > start && (unicode.IsDigit(ch) || ch == '-')) {
			p.pos++
			continue
		}
		break
	}
	if p.pos == start {
		return "", fmt.Errorf("expected identifier at position %d", start)
	}
	return p.input[start:p.pos], nil
}

// parseString reads a single-quoted string literal. No escape
// sequences — outcome values never contain quotes.
func (p *condParser) parseString() (string, error) {
	p.skipSpace()
	if p.pos >= len(p.input) || p.input[p.pos] != '\'' {
		return "", fmt.Errorf("expected single-quoted string at position %d", p.pos)
	}
	p.pos++
	start := p.pos
	for p.pos < len(p.input) && p.input[p.pos] != '\'' {
		p.pos++
	}
	if p.pos >= len(p.input) {
		return "", fmt.Errorf("unterminated string starting at position %d", start-1)
	}
	value := p.input[start:p.pos]
	p.pos++
	return value, nil
}

// consume advances past token (after leading whitespace) when it is
// next in the input. Returns whether it was consumed.
func (p *condParser) consume(token string) bool {
	p.skipSpace()
	if strings.HasPrefix(p.input[p.pos:], token) {
		p.pos += len(token)
		return true
	}
	return false
}

func (p *condParser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func (p *condParser) rest() string {
	if p.pos >= len(p.input) {
		return ""
	}
	return p.input[p.pos:]
}
