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
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/golang/glog"
)

// The description file is TOML with the recognized top-level keys:
// callbacks, identification, slave_id, buffer_size, mode, namespace,
// on_received and one or more device / device@<addr> tables. A command is
// an array of matcher expressions optionally closed by a callback name:
//
//	["device@0x17"]
//	commands = [
//	    ["read_holding_registers", "u16(0,0x100)", "u16(1,125)", "on_read"],
//	]
//
// A matcher expression is a function-code name or a width tag with a
// predicate: u8(0x12) exact, u16(0,0x100) range (from inclusive, to
// exclusive), u8[5,6] one-of, u8(any) wildcard. An optional @ALIAS suffix
// names the states the matcher leads to.

var kindNamesToKind = map[string]Kind{
	"u8": U8, "u16": U16, "u32": U32,
	"s8": S8, "s16": S16, "s32": S32,
	"f32": F32,
}

var functionCodes = map[string]func() *Matcher{
	"read_coils":                       ReadCoils,
	"read_discrete_inputs":             ReadDiscreteInputs,
	"read_holding_registers":           ReadHoldingRegisters,
	"read_input_registers":             ReadInputRegisters,
	"write_single_coil":                WriteSingleCoil,
	"write_single_register":            WriteSingleRegister,
	"diagnostics":                      Diagnostics,
	"write_multiple_coils":             WriteMultipleCoils,
	"write_multiple_registers":         WriteMultipleRegisters,
	"report_slave_id":                  ReportSlaveID,
	"read_write_multiple_registers":    ReadWriteMultipleRegisters,
	"encapsulated_interface_transport": EncapsulatedInterfaceTransport,
	"custom":                           Custom,
}

// LoadDescription reads a TOML description file into the in-memory tree
// consumed by Build. Key order in the file is preserved so generation
// stays deterministic.
func LoadDescription(path string) (*Description, error) {
	var raw map[string]toml.Primitive
	md, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	d := &Description{SlaveID: 0xFF}

	for _, key := range md.Keys() {
		if len(key) != 1 {
			continue
		}
		name := key[0]
		prim := raw[name]

		switch {
		case name == "mode":
			err = md.PrimitiveDecode(prim, &d.Mode)
		case name == "namespace":
			err = md.PrimitiveDecode(prim, &d.Namespace)
		case name == "on_received":
			err = md.PrimitiveDecode(prim, &d.OnReceived)
		case name == "slave_id":
			var id int64
			if err = md.PrimitiveDecode(prim, &id); err == nil && (id < 0 || id > 0xFF) {
				return nil, fmt.Errorf("slave_id %d does not fit a byte", id)
			}
			d.SlaveID = int(id)
		case name == "buffer_size":
			err = md.PrimitiveDecode(prim, &d.BufferSize)
		case name == "callbacks":
			d.Callbacks = []Callback{}
			err = decodeCallbacks(md, prim, d)
		case name == "identification":
			err = decodeIdentification(md, prim, d)
		case name == "device" || strings.HasPrefix(name, "device@"):
			err = decodeDevice(md, prim, name, d)
		default:
			glog.Warningf("ignoring unknown key %q in %s", name, path)
		}
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	return d, nil
}

func decodeCallbacks(md toml.MetaData, prim toml.Primitive, d *Description) error {
	var table map[string]toml.Primitive
	if err := md.PrimitiveDecode(prim, &table); err != nil {
		return err
	}
	// md.Keys lists callbacks.<name> in declaration order.
	for _, key := range md.Keys() {
		if len(key) != 2 || key[0] != "callbacks" {
			continue
		}
		name := key[1]
		var rawProto []interface{}
		if err := md.PrimitiveDecode(table[name], &rawProto); err != nil {
			return fmt.Errorf("callback %s: %w", name, err)
		}
		cb := Callback{Name: name}
		for _, entry := range rawProto {
			param, err := parseParam(entry)
			if err != nil {
				return fmt.Errorf("callback %s: %w", name, err)
			}
			cb.Params = append(cb.Params, param)
		}
		d.Callbacks = append(d.Callbacks, cb)
	}
	return nil
}

// parseParam accepts a width tag ("u16") or a (tag, name) pair.
func parseParam(entry interface{}) (Param, error) {
	switch v := entry.(type) {
	case string:
		kind, ok := kindNamesToKind[v]
		if !ok {
			return Param{}, fmt.Errorf("unknown parameter type %q", v)
		}
		return Param{Kind: kind}, nil
	case []interface{}:
		if len(v) != 2 {
			return Param{}, fmt.Errorf("a parameter pair must be [type, name]")
		}
		tag, ok1 := v[0].(string)
		pname, ok2 := v[1].(string)
		if !ok1 || !ok2 {
			return Param{}, fmt.Errorf("a parameter pair must be [type, name]")
		}
		kind, ok := kindNamesToKind[tag]
		if !ok {
			return Param{}, fmt.Errorf("unknown parameter type %q", tag)
		}
		if !validIdentifier.MatchString(pname) {
			return Param{}, InvalidIdentifierError{Name: pname}
		}
		return Param{Kind: kind, Name: pname}, nil
	}
	return Param{}, fmt.Errorf("unsupported parameter descriptor %v", entry)
}

func decodeIdentification(md toml.MetaData, prim toml.Primitive, d *Description) error {
	var table map[string]string
	if err := md.PrimitiveDecode(prim, &table); err != nil {
		return err
	}
	for _, key := range md.Keys() {
		if len(key) != 2 || key[0] != "identification" {
			continue
		}
		name := key[1]
		if _, ok := identObjectNames[name]; !ok {
			return fmt.Errorf("unknown identification object %q", name)
		}
		d.Identification = append(d.Identification, Identify(name, table[name]))
	}
	return nil
}

func decodeDevice(md toml.MetaData, prim toml.Primitive, key string, d *Description) error {
	var table struct {
		Commands [][]string `toml:"commands"`
	}
	if err := md.PrimitiveDecode(prim, &table); err != nil {
		return err
	}

	dev := Device{Runtime: key == "device"}
	if !dev.Runtime {
		text := strings.TrimPrefix(key, "device@")
		addr, err := strconv.ParseInt(text, 0, 64)
		if err != nil {
			return BadDeviceAddressError{Text: text}
		}
		dev.Address = int(addr)
	}

	for _, tuple := range table.Commands {
		cmd, err := parseCommand(tuple)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		dev.Commands = append(dev.Commands, cmd)
	}
	d.Devices = append(d.Devices, dev)
	return nil
}

// parseCommand splits a command tuple into its matchers and the optional
// trailing callback name.
func parseCommand(tuple []string) (Command, error) {
	if len(tuple) == 0 {
		return Command{}, fmt.Errorf("a command cannot be empty")
	}
	var cmd Command
	last := tuple[len(tuple)-1]
	matchers := tuple
	if !isMatcherExpr(last) {
		if !validIdentifier.MatchString(last) {
			return Command{}, InvalidIdentifierError{Name: last}
		}
		cmd.Callback = last
		matchers = tuple[:len(tuple)-1]
	}
	if len(matchers) == 0 {
		return Command{}, fmt.Errorf("a command needs at least a function code matcher")
	}
	for _, expr := range matchers {
		m, err := parseMatcher(expr)
		if err != nil {
			return Command{}, err
		}
		cmd.Matchers = append(cmd.Matchers, m)
	}
	return cmd, nil
}

// isMatcherExpr distinguishes the final callback name from a matcher.
func isMatcherExpr(s string) bool {
	if _, ok := functionCodes[s]; ok {
		return true
	}
	return strings.ContainsAny(s, "([@")
}

// parseMatcher scans one matcher expression.
func parseMatcher(s string) (*Matcher, error) {
	expr := s
	alias := ""
	if at := strings.LastIndexByte(expr, '@'); at >= 0 {
		alias = expr[at+1:]
		expr = expr[:at]
		if !validIdentifier.MatchString(alias) {
			return nil, fmt.Errorf("bad alias in matcher %q", s)
		}
	}

	if ctor, ok := functionCodes[expr]; ok {
		m := ctor()
		if alias != "" {
			m.As(alias)
		}
		return m, nil
	}

	open := strings.IndexAny(expr, "([")
	if open < 0 {
		return nil, fmt.Errorf("unknown matcher %q", s)
	}
	kind, ok := kindNamesToKind[expr[:open]]
	if !ok {
		return nil, fmt.Errorf("unknown matcher type in %q", s)
	}

	var m *Matcher
	switch expr[open] {
	case '(':
		if !strings.HasSuffix(expr, ")") {
			return nil, fmt.Errorf("unterminated matcher %q", s)
		}
		inner := strings.TrimSpace(expr[open+1 : len(expr)-1])
		if inner == "" || inner == "any" {
			m = Any(kind)
			break
		}
		values, err := parseValues(inner)
		if err != nil {
			return nil, fmt.Errorf("matcher %q: %w", s, err)
		}
		switch len(values) {
		case 1:
			m = Exact(kind, values[0])
		case 2:
			m = ValueRange(kind, values[0], values[1])
		default:
			return nil, fmt.Errorf("matcher %q takes one value or a from,to range", s)
		}
	case '[':
		if !strings.HasSuffix(expr, "]") {
			return nil, fmt.Errorf("unterminated matcher %q", s)
		}
		values, err := parseValues(expr[open+1 : len(expr)-1])
		if err != nil {
			return nil, fmt.Errorf("matcher %q: %w", s, err)
		}
		m = OneOf(kind, values...)
	}

	if alias != "" {
		m.As(alias)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("matcher %q: %w", s, err)
	}
	return m, nil
}

func parseValues(list string) ([]int64, error) {
	parts := strings.Split(list, ",")
	values := make([]int64, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(part), 0, 64)
		if err != nil {
			return nil, fmt.Errorf("bad value %q", strings.TrimSpace(part))
		}
		values = append(values, v)
	}
	return values, nil
}
