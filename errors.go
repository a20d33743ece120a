// Copyright 2025 The modbusrc Authors. All rights reserved
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package modbusrc

import "fmt"

// Build errors. Any of these aborts generation entirely; no partial
// artifact is ever emitted.

type UnknownCallbackError struct {
	Name string
}

func (e UnknownCallbackError) Error() string {
	return fmt.Sprintf("unknown callback %s: callback must be declared first", e.Name)
}

type InvalidIdentifierError struct {
	Name string
}

func (e InvalidIdentifierError) Error() string {
	return fmt.Sprintf("%q is not a valid identifier", e.Name)
}

type BadDeviceAddressError struct {
	Text string
}

func (e BadDeviceAddressError) Error() string {
	return fmt.Sprintf("malformed device address %q", e.Text)
}

type AddressOutOfRangeError struct {
	Address int
}

func (e AddressOutOfRangeError) Error() string {
	return fmt.Sprintf("device address %d must be <= 254", e.Address)
}

type SizeMismatchError struct {
	Callback string
	Position int // parameter position, 1-based from the left
	Matcher  *Matcher
	Param    Param
}

func (e SizeMismatchError) Error() string {
	name := e.Param.Name
	if name == "" {
		name = fmt.Sprintf("argument at position %d", e.Position)
	} else {
		name = fmt.Sprintf("%q", name)
	}
	return fmt.Sprintf("cannot fit %s into %s of type %s in %s",
		e.Matcher, name, e.Param.Kind.ctype(), e.Callback)
}

type ConflictingTransitionsError struct {
	State   string
	Matcher *Matcher
}

func (e ConflictingTransitionsError) Error() string {
	return fmt.Sprintf("conflicting transitions at state %s for %s: commands must have a unique path",
		e.State, e.Matcher)
}

type InvalidIdentificationKeyError struct {
	Code int
}

func (e InvalidIdentificationKeyError) Error() string {
	return fmt.Sprintf("invalid identification key %#x", e.Code)
}

type MissingProductCodeError struct{}

func (MissingProductCodeError) Error() string {
	return "identification requires at least product_code"
}

type InvalidModeError struct {
	Mode string
}

func (e InvalidModeError) Error() string {
	return fmt.Sprintf("the mode must be 'master' or 'slave', not %q", e.Mode)
}

type MissingCallbacksError struct{}

func (MissingCallbacksError) Error() string {
	return "callbacks are required"
}

// buildError covers the build failures that have no structured payload.
type buildError string

func (e buildError) Error() string { return string(e) }
