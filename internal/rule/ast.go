// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

// Package rule evaluates the conditions and amount scripts attached to ledger
// behaviors. Conditions use a small parsed language; amounts may come from a
// sandboxed Lua chunk. Neither path can reach the host beyond the facts passed in.
package rule

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// ruleLexer tokenizes conditions. Comparison operators come before "!" so
// "!=" is not split.
var ruleLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"[^"]*"`},
	{Name: "Number", Pattern: `-?\d+`},
	{Name: "Op", Pattern: `==|!=|<=|>=|<|>`},
	{Name: "Logic", Pattern: `&&|\|\|`},
	{Name: "Not", Pattern: `!`},
	{Name: "Ident", Pattern: `[a-zA-Z_]\w*(\.[a-zA-Z_]\w*)*`},
	{Name: "Punct", Pattern: `[()]`},
	{Name: "whitespace", Pattern: `\s+`},
})

// Disjunction is the grammar root: terms joined by "||".
//
// Grammar: conj ( "||" conj )*
type Disjunction struct {
	Pos          lexer.Position `parser:""`
	Conjunctions []*Conjunction `parser:"@@ ( '||' @@ )*"`
}

// Conjunction is a run of terms joined by "&&".
type Conjunction struct {
	Terms []*Term `parser:"@@ ( '&&' @@ )*"`
}

// Term is a negation, a parenthesized group, or a comparison.
type Term struct {
	Negated *Term        `parser:"  '!' @@"`
	Group   *Disjunction `parser:"| '(' @@ ')'"`
	Compare *Comparison  `parser:"| @@"`
}

// Comparison is "operand [op operand]". A bare operand tests truthiness.
type Comparison struct {
	Left  *Operand `parser:"@@"`
	Op    string   `parser:"( @Op"`
	Right *Operand `parser:"  @@ )?"`
}

// Operand is a literal or a dotted fact reference.
type Operand struct {
	Number *int    `parser:"  @Number"`
	Text   *string `parser:"| @String"`
	Bool   *string `parser:"| @('true' | 'false')"`
	Ref    string  `parser:"| @Ident"`
}

func newParser() (*participle.Parser[Disjunction], error) {
	return participle.Build[Disjunction](
		participle.Lexer(ruleLexer),
		participle.Unquote("String"),
	)
}
