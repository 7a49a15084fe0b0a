package slp

import (
	"errors"
	"fmt"
	"testing"
)

func TestParser(t *testing.T) {
	testCases := []struct {
		input    string
		expected Obj
	}{
		{
			input:    "(send pid msg)",
			expected: NewList(NewSymbol("send"), NewSymbol("pid"), NewSymbol("msg")),
		},
		{
			input:    "42",
			expected: NewInt(42),
		},
		{
			input:    "-17",
			expected: NewInt(-17),
		},
		{
			input:    "-",
			expected: NewSymbol("-"),
		},
		{
			input:    "#t",
			expected: True,
		},
		{
			input:    "false",
			expected: False,
		},
		{
			input:    "()",
			expected: Empty,
		},
		{
			input: `(print "hello world")`,
			expected: NewList(
				NewSymbol("print"),
				NewString("hello world"),
			),
		},
		{
			input: `("line\nbreak\ttab" "quote \"inside\"" "backslash \\ here")`,
			expected: NewList(
				NewString("line\nbreak\ttab"),
				NewString(`quote "inside"`),
				NewString(`backslash \ here`),
			),
		},
		{
			input:    `'x`,
			expected: NewList(NewSymbol("quote"), NewSymbol("x")),
		},
		{
			input: `'(1 2)`,
			expected: NewList(
				NewSymbol("quote"),
				NewList(NewInt(1), NewInt(2)),
			),
		},
		{
			input: "(let\n\t((x 1)) ; bind x\n  x)",
			expected: NewList(
				NewSymbol("let"),
				NewList(NewList(NewSymbol("x"), NewInt(1))),
				NewSymbol("x"),
			),
		},
		{
			input: "(empty? (cdr xs))",
			expected: NewList(
				NewSymbol("empty?"),
				NewList(NewSymbol("cdr"), NewSymbol("xs")),
			),
		},
	}

	for i, tc := range testCases {
		t.Run(fmt.Sprintf("test_%d", i), func(t *testing.T) {
			result, err := ParseOne(tc.input)
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", tc.input, err)
			}
			if !Equal(result, tc.expected) {
				t.Errorf("expected %s, got %s", tc.expected.Encode(), result.Encode())
			}
		})
	}
}

func TestParserErrors(t *testing.T) {
	testCases := []struct {
		input      string
		position   int
		message    string
		incomplete bool
	}{
		{input: "(a b", position: 0, message: "unclosed list", incomplete: true},
		{input: "  (a (b c)", position: 2, message: "unclosed list", incomplete: true},
		{input: `"open`, position: 0, message: "unclosed quoted string", incomplete: true},
		{input: ")", position: 0, message: "unexpected ')'"},
		{input: "'", position: 1, message: "unexpected end of input"},
	}

	for i, tc := range testCases {
		t.Run(fmt.Sprintf("error_%d", i), func(t *testing.T) {
			_, err := Parse(tc.input)
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected *ParseError for %q, got %v", tc.input, err)
			}
			if perr.Position != tc.position || perr.Message != tc.message {
				t.Errorf("expected error {Position: %d, Message: %s}, got {Position: %d, Message: %s}",
					tc.position, tc.message, perr.Position, perr.Message)
			}
			if perr.Incomplete() != tc.incomplete {
				t.Errorf("expected Incomplete() == %v for %q", tc.incomplete, tc.input)
			}
		})
	}
}

func TestParseProgram(t *testing.T) {
	exprs, err := Parse("(def x 2)\n; comment only line\n(+ x 1)  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(exprs) != 2 {
		t.Fatalf("expected 2 expressions, got %d", len(exprs))
	}

	empty, err := Parse("   ; nothing\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected no expressions, got %d", len(empty))
	}

	if _, err := ParseOne("1 2"); err == nil {
		t.Errorf("expected ParseOne to reject two expressions")
	}
}

func TestRoundTrip(t *testing.T) {
	inputs := []string{
		"(send pid msg)",
		`(print "with \"quotes\" and\nnewline")`,
		"(let ((x 1) (y -2)) (+ x y))",
		"(#t #f ())",
		"(quote (a (b (c))))",
	}

	for i, input := range inputs {
		t.Run(fmt.Sprintf("roundtrip_%d", i), func(t *testing.T) {
			original, err := ParseOne(input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			encoded := original.Encode()
			decoded, err := ParseOne(encoded)
			if err != nil {
				t.Fatalf("re-parse of %q failed: %v", encoded, err)
			}
			if !Equal(original, decoded) {
				t.Errorf("Round-trip failed for input: %s", input)
				t.Errorf("Encoded: %s", encoded)
				t.Errorf("Decoded: %s", decoded.Encode())
			}
		})
	}
}

func TestEncode(t *testing.T) {
	pid := NewPid()
	m := NewMap().Set("b", NewInt(2)).Set("a", NewString("x"))

	testCases := []struct {
		obj      Obj
		expected string
	}{
		{obj: NewInt(-3), expected: "-3"},
		{obj: True, expected: "#t"},
		{obj: NewString("hi"), expected: `"hi"`},
		{obj: NewList(NewSymbol("a"), NewList()), expected: "(a ())"},
		{obj: NewMapObj(m), expected: `{a "x" b 2}`},
		{obj: NewLambda([]Symbol{"x", "y"}, NewSymbol("x"), nil), expected: "#<lambda (x y)>"},
		{obj: NewPidObj(pid), expected: "#<pid " + pid.String() + ">"},
		{obj: NewError(ErrUserError, NewString("boom")), expected: `#<error UserError "boom">`},
	}

	for i, tc := range testCases {
		t.Run(fmt.Sprintf("encode_%d", i), func(t *testing.T) {
			if result := tc.obj.Encode(); result != tc.expected {
				t.Errorf("expected %q, got %q", tc.expected, result)
			}
		})
	}

	if NewString("plain").Display() != "plain" {
		t.Errorf("Display should not quote top level strings")
	}
}
