// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package rule

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// DefaultScriptTimeout bounds a single amount script.
const DefaultScriptTimeout = 50 * time.Millisecond

// safeLibrary is a Lua library that may be opened in a sandboxed state.
type safeLibrary struct {
	name string
	fn   lua.LGFunction
}

// Safe: base, table, string, math. Blocked: os, io, debug, package, coroutine.
func safeLibraries() []safeLibrary {
	return []safeLibrary{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}
}

// Base functions that can read files or compile source at runtime.
var unsafeBaseFunctions = []string{"dofile", "loadfile", "loadstring", "load", "require"}

// Script is a precompiled Lua amount script. It is safe for concurrent use;
// every Eval runs in a fresh state.
type Script struct {
	source string
	proto  *lua.FunctionProto
}

// CompileScript parses and compiles a Lua chunk. A chunk that is a bare
// expression ("facts.wounds * -5") is treated as "return <expr>".
func CompileScript(source string) (*Script, error) {
	src := strings.TrimSpace(source)
	if src == "" {
		return nil, oops.Code(CodeScriptCompile).In("rule").Errorf("empty script")
	}
	chunk, err := parse.Parse(strings.NewReader("return "+src), "amount")
	if err != nil {
		// Not an expression; compile the statements as written.
		if chunk, err = parse.Parse(strings.NewReader(src), "amount"); err != nil {
			return nil, oops.Code(CodeScriptCompile).In("rule").With("script", source).Wrap(err)
		}
	}
	proto, err := lua.Compile(chunk, "amount")
	if err != nil {
		return nil, oops.Code(CodeScriptCompile).In("rule").With("script", source).Wrap(err)
	}
	return &Script{source: source, proto: proto}, nil
}

// String returns the original source.
func (s *Script) String() string {
	return s.source
}

// Eval runs the script with facts bound to the global "facts" and returns its
// integer result. Fractional results are truncated toward zero.
func (s *Script) Eval(ctx context.Context, facts Facts) (int, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultScriptTimeout)
		defer cancel()
	}

	L, err := newSandbox(ctx)
	if err != nil {
		return 0, err
	}
	defer L.Close()

	L.SetGlobal("facts", toLua(L, map[string]any(facts)))
	L.Push(L.NewFunctionFromProto(s.proto))
	if err := L.PCall(0, 1, nil); err != nil {
		return 0, oops.Code(CodeScriptFailed).In("rule").With("script", s.source).Wrap(err)
	}
	ret := L.Get(-1)
	L.Pop(1)

	n, ok := ret.(lua.LNumber)
	if !ok {
		return 0, oops.Code(CodeScriptResult).In("rule").
			With("script", s.source).
			With("type", ret.Type().String()).
			Errorf("amount script must return a number")
	}
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, oops.Code(CodeScriptResult).In("rule").With("script", s.source).Errorf("amount script returned %v", f)
	}
	return int(f), nil
}

func newSandbox(ctx context.Context) (*lua.LState, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range safeLibraries() {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, oops.Code(CodeScriptFailed).In("rule").With("library", lib.name).Wrap(err)
		}
	}
	for _, fn := range unsafeBaseFunctions {
		L.SetGlobal(fn, lua.LNil)
	}
	L.SetContext(ctx)
	return L, nil
}

func toLua(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(x)
	case string:
		return lua.LString(x)
	case int:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case int32:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case Facts:
		return toLua(L, map[string]any(x))
	case map[string]any:
		t := L.NewTable()
		for k, val := range x {
			t.RawSetString(k, toLua(L, val))
		}
		return t
	case []any:
		t := L.NewTable()
		for _, val := range x {
			t.Append(toLua(L, val))
		}
		return t
	default:
		return lua.LNil
	}
}
