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

import (
	"fmt"
	"strings"
)

// Kind identifies the width and signedness family of a matched field
// or of a callback parameter.
type Kind uint8

const (
	U8 Kind = iota
	U16
	U32
	S8
	S16
	S32
	F32
)

var kindNames = [...]string{"u8", "u16", "u32", "s8", "s16", "s32", "f32"}

func (k Kind) String() string { return kindNames[k] }

func (k Kind) bits() int {
	switch k {
	case U8, S8:
		return 8
	case U16, S16:
		return 16
	}
	return 32
}

// size is the number of frame bytes a field of this kind occupies.
func (k Kind) size() int { return k.bits() / 8 }

func (k Kind) signed() bool { return k == S8 || k == S16 || k == S32 }

func (k Kind) isFloat() bool { return k == F32 }

// ctype is the parameter type spelled in the generated code. A float is
// carried as its raw 32-bit big-endian representation.
func (k Kind) ctype() string {
	switch k {
	case U8:
		return "uint8_t"
	case U16:
		return "uint16_t"
	case S8:
		return "int8_t"
	case S16:
		return "int16_t"
	case S32:
		return "int32_t"
	}
	return "uint32_t"
}

// minValue and maxValue bound the representable values of an integral kind.
func (k Kind) minValue() int64 {
	if k.signed() {
		return -(int64(1) << (k.bits() - 1))
	}
	return 0
}

func (k Kind) maxValue() int64 {
	if k.signed() {
		return int64(1)<<(k.bits()-1) - 1
	}
	return int64(1)<<k.bits() - 1
}

type predKind uint8

const (
	predAny predKind = iota
	predExact
	predRange
	predOneOf
)

// Matcher is a typed acceptor for one field of a Modbus request: a width
// and signedness plus an accepted-value shape. Two dedicated variants
// exist beside the plain integral families: the two-byte CRC tail closing
// every frame, and the runtime-configured device address.
type Matcher struct {
	kind  Kind
	pk    predKind
	exact int64
	from  int64 // inclusive
	to    int64 // exclusive
	oneOf []int64
	alias string

	crcTail     bool
	runtimeAddr bool
}

// Exact accepts the single value v.
func Exact(k Kind, v int64) *Matcher {
	return &Matcher{kind: k, pk: predExact, exact: v}
}

// ValueRange accepts from (inclusive) up to to (exclusive).
func ValueRange(k Kind, from, to int64) *Matcher {
	return &Matcher{kind: k, pk: predRange, from: from, to: to}
}

// OneOf accepts any of the listed values.
func OneOf(k Kind, vs ...int64) *Matcher {
	return &Matcher{kind: k, pk: predOneOf, oneOf: vs}
}

// Any accepts every value of the kind.
func Any(k Kind) *Matcher {
	return &Matcher{kind: k, pk: predAny}
}

// CrcTail marks the two CRC bytes closing a frame. The CRC has no accept
// predicate; its validity is checked against the running CRC once the
// frame is complete.
func CrcTail() *Matcher {
	return &Matcher{kind: U16, pk: predAny, crcTail: true}
}

func newRuntimeDeviceAddress(alias string) *Matcher {
	return &Matcher{kind: U8, pk: predAny, runtimeAddr: true, alias: alias}
}

// As attaches a state-naming alias and returns the matcher.
func (m *Matcher) As(alias string) *Matcher {
	m.alias = alias
	return m
}

// Named function-code matchers for the supported Modbus RTU commands.
func ReadCoils() *Matcher            { return Exact(U8, 0x01).As("READ_COILS") }
func ReadDiscreteInputs() *Matcher   { return Exact(U8, 0x02).As("READ_DISCRETE_INPUTS") }
func ReadHoldingRegisters() *Matcher { return Exact(U8, 0x03).As("READ_HOLDING_REGISTERS") }
func ReadInputRegisters() *Matcher   { return Exact(U8, 0x04).As("READ_INPUT_REGISTERS") }
func WriteSingleCoil() *Matcher      { return Exact(U8, 0x05).As("WRITE_SINGLE_COIL") }
func WriteSingleRegister() *Matcher  { return Exact(U8, 0x06).As("WRITE_SINGLE_REGISTER") }
func Diagnostics() *Matcher          { return Exact(U8, 0x08).As("DIAGNOSTICS") }
func WriteMultipleCoils() *Matcher   { return Exact(U8, 0x0F).As("WRITE_MULTIPLE_COILS") }
func WriteMultipleRegisters() *Matcher {
	return Exact(U8, 0x10).As("WRITE_MULTIPLE_REGISTERS")
}
func ReportSlaveID() *Matcher { return Exact(U8, 0x11).As("REPORT_SLAVE_ID") }
func ReadWriteMultipleRegisters() *Matcher {
	return Exact(U8, 0x17).As("READ_WRITE_MULTIPLE_REGISTERS")
}
func EncapsulatedInterfaceTransport() *Matcher {
	return Exact(U8, 0x2B).As("ENCAPSULATED_INTERFACE_TRANSPORT")
}
func Custom() *Matcher { return Exact(U8, 0x65).As("CUSTOM") }

// Size is the number of frame bytes the matcher consumes.
func (m *Matcher) Size() int { return m.kind.size() }

// equal reports structural equality: same width, signedness and predicate.
// The alias does not participate.
func (m *Matcher) equal(o *Matcher) bool {
	if m.kind != o.kind || m.pk != o.pk ||
		m.crcTail != o.crcTail || m.runtimeAddr != o.runtimeAddr {
		return false
	}
	switch m.pk {
	case predExact:
		return m.exact == o.exact
	case predRange:
		return m.from == o.from && m.to == o.to
	case predOneOf:
		if len(m.oneOf) != len(o.oneOf) {
			return false
		}
		for i, v := range m.oneOf {
			if o.oneOf[i] != v {
				return false
			}
		}
	}
	return true
}

// contains reports whether the predicate accepts v.
func (m *Matcher) contains(v int64) bool {
	switch m.pk {
	case predExact:
		return m.exact == v
	case predRange:
		return m.from <= v && v < m.to
	case predOneOf:
		for _, o := range m.oneOf {
			if o == v {
				return true
			}
		}
		return false
	}
	return true
}

// overlaps reports whether two non-equal sibling matchers could both
// accept the same byte sequence. Matchers of different widths or
// signedness never overlap since they decode in separate guard groups.
func (m *Matcher) overlaps(o *Matcher) bool {
	if m.kind != o.kind ||
		m.crcTail || o.crcTail || m.runtimeAddr || o.runtimeAddr {
		return false
	}
	if m.pk == predAny || o.pk == predAny {
		return true
	}
	switch m.pk {
	case predExact:
		return o.contains(m.exact)
	case predOneOf:
		for _, v := range m.oneOf {
			if o.contains(v) {
				return true
			}
		}
		return false
	case predRange:
		switch o.pk {
		case predExact:
			return m.contains(o.exact)
		case predOneOf:
			return o.overlaps(m)
		case predRange:
			return m.from < o.to && o.from < m.to
		}
	}
	return false
}

// fits reports whether a value captured by the matcher can be handed to a
// callback parameter of kind k. Wider or same-width parameters always fit.
// A strictly narrower parameter only fits when the predicate demonstrably
// constrains every accepted value into the parameter's range, so a
// wildcard never fits a narrower parameter.
func (m *Matcher) fits(k Kind) bool {
	if k.size() >= m.Size() {
		return true
	}
	min, max := k.minValue(), k.maxValue()
	switch m.pk {
	case predExact:
		return min <= m.exact && m.exact <= max
	case predRange:
		return m.from >= min && m.to <= max+1
	case predOneOf:
		for _, v := range m.oneOf {
			if v < min || v > max {
				return false
			}
		}
		return true
	}
	return false
}

// renderPredicate returns the generated test accepting the matcher's
// values, with v naming the decoded field. ok is false for a wildcard,
// which accepts without a test. A range renders with an inclusive upper
// bound (v <= to), so the generated test also accepts the value to.
func (m *Matcher) renderPredicate(v string) (expr string, ok bool) {
	if m.crcTail {
		return "true", true
	}
	if m.runtimeAddr {
		return v + " == device_address", true
	}
	switch m.pk {
	case predExact:
		return fmt.Sprintf("%s == %d", v, m.exact), true
	case predRange:
		if m.from == 0 && !m.kind.signed() {
			return fmt.Sprintf("%s <= %d", v, m.to), true
		}
		return fmt.Sprintf("%s >= %d and %s <= %d", v, m.from, v, m.to), true
	case predOneOf:
		var tests []string
		for _, val := range m.oneOf {
			tests = append(tests, fmt.Sprintf("%s == %#x", v, val))
		}
		return strings.Join(tests, " || "), true
	}
	return "", false
}

// validate checks the literals against the declared width and signedness.
func (m *Matcher) validate() error {
	if m.crcTail || m.runtimeAddr {
		return nil
	}
	if m.kind.isFloat() {
		if m.pk != predAny {
			return fmt.Errorf("%s only accepts a wildcard predicate", m.kind)
		}
		return nil
	}
	check := func(v int64) error {
		if v < m.kind.minValue() || v > m.kind.maxValue() {
			return fmt.Errorf("cannot cast the value %d to %s", v, m.kind)
		}
		return nil
	}
	switch m.pk {
	case predExact:
		return check(m.exact)
	case predRange:
		if m.from >= m.to {
			return fmt.Errorf("empty range [%d-%d] for %s", m.from, m.to, m.kind)
		}
		if err := check(m.from); err != nil {
			return err
		}
		return check(m.to - 1)
	case predOneOf:
		for _, v := range m.oneOf {
			if err := check(v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Matcher) String() string {
	if m.crcTail {
		return "crc"
	}
	if m.runtimeAddr {
		return "u8(device_address)"
	}
	switch m.pk {
	case predExact:
		return fmt.Sprintf("%s(%d)", m.kind, m.exact)
	case predRange:
		return fmt.Sprintf("%s(%d,%d)", m.kind, m.from, m.to)
	case predOneOf:
		parts := make([]string, len(m.oneOf))
		for i, v := range m.oneOf {
			parts[i] = fmt.Sprintf("%d", v)
		}
		return fmt.Sprintf("%s[%s]", m.kind, strings.Join(parts, ","))
	}
	return fmt.Sprintf("%s(any)", m.kind)
}
