// Copyright (C) 2017. See AUTHORS.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package utils

import (
	"strings"
)

// ErrorGroup collates errors
type ErrorGroup struct {
	Errors []error
}

// Add adds an error to an existing error group
func (e *ErrorGroup) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// Finalize returns nil for an empty group and the error itself for a group of
// one. Larger groups are joined into one error that still matches each of
// its members with errors.Is.
func (e *ErrorGroup) Finalize() error {
	switch len(e.Errors) {
	case 0:
		return nil
	case 1:
		return e.Errors[0]
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return &groupError{msg: strings.Join(msgs, "\n"), errs: e.Errors}
}

type groupError struct {
	msg  string
	errs []error
}

func (g *groupError) Error() string { return g.msg }

func (g *groupError) Unwrap() []error { return g.errs }
