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

import "strconv"

// Transition consumes one matcher worth of bytes and moves to the next
// state. setCRC marks the transition consuming the last pre-CRC byte of a
// command; its next state collects the CRC.
type Transition struct {
	matcher *Matcher
	next    *State
	setCRC  bool
}

// State is one node of the decoding automaton. pos counts the bytes
// consumed to reach it, starting at 0 for the initial state. A terminal
// state holds the operation to invoke once the CRC has been accepted; a
// nil operation on a terminal is the no-op sentinel.
type State struct {
	name        string
	pos         int
	mode        string // "slave" or "master", used only for emission
	transitions []*Transition

	terminal bool
	op       *Operation
}

func (s *State) add(t *Transition) {
	s.transitions = append(s.transitions, t)
}

// find returns the transition whose matcher is structurally equal to m,
// or nil. Descending through it is what gives prefix sharing.
func (s *State) find(m *Matcher) *Transition {
	for _, t := range s.transitions {
		if t.matcher.equal(m) {
			return t
		}
	}
	return nil
}

// overlapping returns a sibling transition whose matcher overlaps m
// without being equal to it, or nil.
func (s *State) overlapping(m *Matcher) *Transition {
	for _, t := range s.transitions {
		if t.matcher.overlaps(m) {
			return t
		}
	}
	return nil
}

// childName derives the name of the state reached through m: the
// matcher's alias when it has one, the child's byte position otherwise.
func (s *State) childName(m *Matcher) string {
	suffix := m.alias
	if suffix == "" {
		suffix = strconv.Itoa(s.pos + m.Size())
	}
	return s.name + "_" + suffix
}

// IdentObject is one declared identification object.
type IdentObject struct {
	code  int
	value string
}

// identification collects the declared objects and the conformity level
// derived from them.
type identification struct {
	objects    []IdentObject
	conformity int
}

func (id *identification) value(code int) (string, bool) {
	for _, o := range id.objects {
		if o.code == code {
			return o.value, true
		}
	}
	return "", false
}

// Callback is a declared callback with its ordered prototype.
type Callback struct {
	Name   string
	Params []Param
}

// Automaton is the complete byte-driven decoder graph built from a
// Description, ready for emission.
type Automaton struct {
	states    []*State
	callbacks []Callback

	mode       string
	namespace  string
	slaveID    int
	bufSize    int
	onReceived string

	// deviceAddress is the compile-time address, nil when the address is
	// configured at runtime (or when no addressed device is declared).
	deviceAddress *int

	// ident is non-nil when the identification sub-protocols are active.
	ident *identification
}

// States returns the state names in creation order.
func (a *Automaton) States() []string {
	names := make([]string, len(a.states))
	for i, s := range a.states {
		names[i] = s.name
	}
	return names
}

// BufferSize returns the emitted receive buffer size.
func (a *Automaton) BufferSize() int { return a.bufSize }
