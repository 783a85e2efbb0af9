// Copyright (c) 2014, Kevin Walsh.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package dedprim provides a small library of ready-made host primitives
// (equality, ordering, and arithmetic tests) for use with Prim goals.
package dedprim

import (
	"fmt"

	"github.com/tuplespace/ded"
)

func arity(n int, args []any) error {
	if len(args) != n {
		return fmt.Errorf("dedprim: expected %d arguments, got %d", n, len(args))
	}
	return nil
}

// Eq is a generic equality test over two bound values of the same
// underlying Go type, usable with any ColumnType whose values compare
// with ==.
var Eq = ded.Primitive{
	Name: "eq",
	Pure: true,
	Fn: func(args []any) (bool, error) {
		if err := arity(2, args); err != nil {
			return false, err
		}
		return args[0] == args[1], nil
	},
}

// Neq is the negation of Eq.
var Neq = ded.Primitive{
	Name: "neq",
	Pure: true,
	Fn: func(args []any) (bool, error) {
		if err := arity(2, args); err != nil {
			return false, err
		}
		return args[0] != args[1], nil
	},
}

// IntLess tests a < b for two bound int values.
var IntLess = ded.Primitive{
	Name: "int_less",
	Pure: true,
	Fn: func(args []any) (bool, error) {
		if err := arity(2, args); err != nil {
			return false, err
		}
		a, aok := args[0].(int)
		b, bok := args[1].(int)
		if !aok || !bok {
			return false, fmt.Errorf("dedprim: int_less requires two ints, got %T, %T", args[0], args[1])
		}
		return a < b, nil
	},
}

// StringContains tests whether the first bound string contains the
// second as a substring.
var StringContains = ded.Primitive{
	Name: "string_contains",
	Pure: true,
	Fn: func(args []any) (bool, error) {
		if err := arity(2, args); err != nil {
			return false, err
		}
		a, aok := args[0].(string)
		b, bok := args[1].(string)
		if !aok || !bok {
			return false, fmt.Errorf("dedprim: string_contains requires two strings, got %T, %T", args[0], args[1])
		}
		return len(b) == 0 || (len(a) >= len(b) && indexOf(a, b) >= 0), nil
	},
}

func indexOf(s, substr string) int {
	n, m := len(s), len(substr)
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == substr {
			return i
		}
	}
	return -1
}

// IntEven tests whether a bound int is even.
var IntEven = ded.Primitive{
	Name: "int_even",
	Pure: true,
	Fn: func(args []any) (bool, error) {
		if err := arity(1, args); err != nil {
			return false, err
		}
		a, ok := args[0].(int)
		if !ok {
			return false, fmt.Errorf("dedprim: int_even requires an int, got %T", args[0])
		}
		return a%2 == 0, nil
	},
}

// AddInts is an EvalFunc computing the sum of two bound ints, for use
// with Eval goals (e.g. hoisted functional expressions like Succ(X)).
func AddInts(args []any) (any, error) {
	if err := arity(2, args); err != nil {
		return nil, err
	}
	a, aok := args[0].(int)
	b, bok := args[1].(int)
	if !aok || !bok {
		return nil, fmt.Errorf("dedprim: add requires two ints, got %T, %T", args[0], args[1])
	}
	return a + b, nil
}

// Succ is an EvalFunc computing one plus a bound int, the classic
// Day(Succ(X)) building block.
func Succ(args []any) (any, error) {
	if err := arity(1, args); err != nil {
		return nil, err
	}
	a, ok := args[0].(int)
	if !ok {
		return nil, fmt.Errorf("dedprim: succ requires an int, got %T", args[0])
	}
	return a + 1, nil
}
