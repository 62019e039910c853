// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package rule

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/samber/oops"
)

// Error codes for rule evaluation.
const (
	CodeParse         = "RULE_PARSE"
	CodeTooDeep       = "RULE_TOO_DEEP"
	CodeScriptFailed  = "RULE_SCRIPT_FAILED"
	CodeScriptResult  = "RULE_SCRIPT_RESULT"
	CodeScriptCompile = "RULE_SCRIPT_COMPILE"
)

// MaxNestingDepth bounds negation and grouping depth.
const MaxNestingDepth = 32

var parser *participle.Parser[Disjunction]

func init() {
	var err error
	parser, err = newParser()
	if err != nil {
		panic(fmt.Sprintf("failed to build rule parser: %v", err))
	}
}

// Condition is a parsed, reusable boolean rule.
type Condition struct {
	source string
	root   *Disjunction
}

// Compile parses a condition. An empty string compiles to a condition that is
// always true.
func Compile(text string) (*Condition, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return &Condition{}, nil
	}
	root, err := parser.ParseString("", text)
	if err != nil {
		return nil, oops.Code(CodeParse).In("rule").With("condition", text).Wrapf(err, "parsing condition")
	}
	if err := checkDepth(root, 0); err != nil {
		return nil, oops.Code(CodeTooDeep).In("rule").With("condition", text).Wrap(err)
	}
	return &Condition{source: text, root: root}, nil
}

// MustCompile is Compile for conditions known at build time.
func MustCompile(text string) *Condition {
	c, err := Compile(text)
	if err != nil {
		panic(err)
	}
	return c
}

// String returns the source text.
func (c *Condition) String() string {
	return c.source
}

func checkDepth(d *Disjunction, depth int) error {
	if depth > MaxNestingDepth {
		return fmt.Errorf("nesting depth exceeds maximum of %d", MaxNestingDepth)
	}
	for _, conj := range d.Conjunctions {
		for _, term := range conj.Terms {
			if err := checkTermDepth(term, depth); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkTermDepth(t *Term, depth int) error {
	switch {
	case t.Negated != nil:
		if depth+1 > MaxNestingDepth {
			return fmt.Errorf("nesting depth exceeds maximum of %d", MaxNestingDepth)
		}
		return checkTermDepth(t.Negated, depth+1)
	case t.Group != nil:
		return checkDepth(t.Group, depth+1)
	}
	return nil
}

// Eval evaluates the condition. Missing facts and type mismatches evaluate
// to false rather than erroring.
func (c *Condition) Eval(facts Facts) bool {
	if c == nil || c.root == nil {
		return true
	}
	return evalDisjunction(c.root, facts)
}

func evalDisjunction(d *Disjunction, facts Facts) bool {
	for _, conj := range d.Conjunctions {
		if evalConjunction(conj, facts) {
			return true
		}
	}
	return false
}

func evalConjunction(c *Conjunction, facts Facts) bool {
	for _, t := range c.Terms {
		if !evalTerm(t, facts) {
			return false
		}
	}
	return true
}

func evalTerm(t *Term, facts Facts) bool {
	switch {
	case t.Negated != nil:
		return !evalTerm(t.Negated, facts)
	case t.Group != nil:
		return evalDisjunction(t.Group, facts)
	case t.Compare != nil:
		return evalComparison(t.Compare, facts)
	default:
		return false
	}
}

func evalComparison(c *Comparison, facts Facts) bool {
	left, ok := resolve(c.Left, facts)
	if !ok {
		return false
	}
	if c.Op == "" {
		return truthy(left)
	}
	right, ok := resolve(c.Right, facts)
	if !ok {
		return false
	}

	if l, lok := toInt(left); lok {
		if r, rok := toInt(right); rok {
			return compareInts(l, r, c.Op)
		}
		return false
	}
	switch l := left.(type) {
	case string:
		r, ok := right.(string)
		if !ok {
			return false
		}
		return compareEq(l == r, c.Op)
	case bool:
		r, ok := right.(bool)
		if !ok {
			return false
		}
		return compareEq(l == r, c.Op)
	}
	return false
}

func resolve(o *Operand, facts Facts) (any, bool) {
	switch {
	case o.Number != nil:
		return *o.Number, true
	case o.Text != nil:
		return *o.Text, true
	case o.Bool != nil:
		return *o.Bool == "true", true
	default:
		return facts.Lookup(o.Ref)
	}
}

func compareInts(l, r int, op string) bool {
	switch op {
	case "==":
		return l == r
	case "!=":
		return l != r
	case "<":
		return l < r
	case "<=":
		return l <= r
	case ">":
		return l > r
	case ">=":
		return l >= r
	}
	return false
}

func compareEq(equal bool, op string) bool {
	switch op {
	case "==":
		return equal
	case "!=":
		return !equal
	}
	return false
}

func truthy(v any) bool {
	if n, ok := toInt(v); ok {
		return n != 0
	}
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x != ""
	}
	return false
}
