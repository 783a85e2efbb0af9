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

package ded

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds, per the engine's error taxonomy. Use errors.Is against these
// sentinels; the wrapped error returned to callers carries additional
// context via errors.Wrap.
var (
	ErrInstantiation = errors.New("ded: unbound variable where bound value required")
	ErrDuplicateKey  = errors.New("ded: duplicate key")
	ErrInvalidProgram = errors.New("ded: invalid program")
	ErrRuleExecution = errors.New("ded: rule execution failed")
	ErrType          = errors.New("ded: type error")
	ErrIndexContract = errors.New("ded: index does not permit this operation")
)

// RuleError wraps a failure that occurred while evaluating a rule body,
// carrying enough context for the Exceptions predicate (§4.7, §7).
type RuleError struct {
	Predicate string
	Rule      *Rule
	Subgoal   int
	Cause     error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("ded: rule execution failed for %s at subgoal %d: %v", e.Predicate, e.Subgoal, e.Cause)
}

func (e *RuleError) Unwrap() error { return e.Cause }

func (e *RuleError) Is(target error) bool { return target == ErrRuleExecution }

// instantiationError builds an ErrInstantiation with a contextual message.
func instantiationError(format string, args ...any) error {
	return errors.Wrapf(ErrInstantiation, format, args...)
}

// typeError builds an ErrType with a contextual message.
func typeError(format string, args ...any) error {
	return errors.Wrapf(ErrType, format, args...)
}

// invalidProgramError builds an ErrInvalidProgram with a contextual message.
func invalidProgramError(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidProgram, format, args...)
}
