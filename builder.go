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
	"regexp"
	"strconv"
	"strings"

	"github.com/golang/glog"
)

// Command is one accepted request shape: the matchers in frame order
// (function code first, then data fields) and the callback to invoke. An
// empty callback name means the frame is accepted with no reply action.
type Command struct {
	Matchers []*Matcher
	Callback string
}

// Device declares one device address and the commands it accepts. A
// runtime device leaves the address to be configured before the bus
// starts.
type Device struct {
	Runtime  bool
	Address  int
	Commands []Command
}

// Description is the in-memory declarative description of a device.
// Callbacks must be non-nil; the remaining fields default like the
// description file does (mode slave, namespace slave, slave id 0xFF).
type Description struct {
	Mode       string
	Namespace  string
	SlaveID    int
	BufferSize int
	OnReceived string

	Callbacks      []Callback
	Identification []IdentObject
	Devices        []Device
}

// Identify declares one identification object by its description-file
// name (product_code, model_name, ...). Unknown names map to an invalid
// code rejected by Build.
func Identify(name, value string) IdentObject {
	code, ok := identObjectNames[name]
	if !ok {
		code = -1
	}
	return IdentObject{code: code, value: value}
}

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

type builder struct {
	a     *Automaton
	proto map[string][]Param
}

// Build translates a Description into the decoding automaton. Any error
// aborts the build; the description itself is never mutated.
func Build(d *Description) (*Automaton, error) {
	mode := d.Mode
	if mode == "" {
		mode = "slave"
	}
	if mode != "slave" && mode != "master" {
		return nil, InvalidModeError{Mode: d.Mode}
	}
	namespace := d.Namespace
	if namespace == "" {
		namespace = "slave"
	}
	slaveID := d.SlaveID
	if slaveID == 0 {
		slaveID = 0xFF
	}

	if d.Callbacks == nil {
		return nil, MissingCallbacksError{}
	}

	b := &builder{
		a: &Automaton{
			mode:       mode,
			namespace:  namespace,
			slaveID:    slaveID,
			onReceived: d.OnReceived,
		},
		proto: make(map[string][]Param),
	}

	for _, cb := range d.Callbacks {
		if !validIdentifier.MatchString(cb.Name) {
			return nil, InvalidIdentifierError{Name: cb.Name}
		}
		if _, dup := b.proto[cb.Name]; dup {
			return nil, buildError("callback " + cb.Name + " is declared twice")
		}
		b.a.callbacks = append(b.a.callbacks, cb)
		b.proto[cb.Name] = cb.Params
	}
	if d.OnReceived != "" && !validIdentifier.MatchString(d.OnReceived) {
		return nil, InvalidIdentifierError{Name: d.OnReceived}
	}

	// Work on copies so injected commands never leak back into the
	// caller's description.
	devices := make([]Device, len(d.Devices))
	for i, dev := range d.Devices {
		devices[i] = dev
		devices[i].Commands = append([]Command(nil), dev.Commands...)
	}

	if err := b.applyIdentification(d, devices); err != nil {
		return nil, err
	}

	// The buffer holds the largest command plus the device address, the
	// function code and the two CRC bytes, raised to the declared floor.
	// Injected commands participate so the 43/14 request always fits.
	for _, dev := range devices {
		for _, cmd := range dev.Commands {
			size := 0
			for _, m := range cmd.Matchers {
				size += m.Size()
			}
			if size+4 > b.a.bufSize {
				b.a.bufSize = size + 4
			}
		}
	}
	if d.BufferSize > b.a.bufSize {
		b.a.bufSize = d.BufferSize
	}

	if err := b.processDevices(devices); err != nil {
		return nil, err
	}
	glog.V(1).Infof("built %d states, buffer size %d", len(b.a.states), b.a.bufSize)
	return b.a, nil
}

// applyIdentification validates the identification table and, in slave
// mode, injects the report-slave-id, read-device-identification and
// diagnostics commands into the first device with a compile-time address,
// or into the first device when every device is runtime-addressed.
func (b *builder) applyIdentification(d *Description, devices []Device) error {
	if len(d.Identification) == 0 || b.a.mode != "slave" {
		return nil
	}

	id := &identification{objects: d.Identification}
	if _, ok := id.value(ProductCode); !ok {
		return MissingProductCodeError{}
	}
	for _, obj := range id.objects {
		category, ok := meiObjectCategory[obj.code]
		if !ok {
			return InvalidIdentificationKeyError{Code: obj.code}
		}
		if category > id.conformity {
			id.conformity = category
		}
	}

	// Prefer a device with a compile-time address, like the description
	// file lists them.
	target := -1
	for i, dev := range devices {
		if !dev.Runtime {
			target = i
			break
		}
	}
	if target < 0 {
		if len(devices) == 0 {
			return buildError("identification requires a 'device' node")
		}
		target = 0
	}
	devices[target].Commands = append(devices[target].Commands, identificationCommands()...)

	for _, cb := range identificationCallbacks() {
		if _, ok := b.proto[cb.Name]; !ok {
			b.a.callbacks = append(b.a.callbacks, cb)
		}
		b.proto[cb.Name] = cb.Params
	}

	b.a.ident = id
	glog.V(1).Infof("identification active, conformity level %d", id.conformity)
	return nil
}

// newState allocates a state with a name made unique among the states
// created so far.
func (b *builder) newState(name string, pos int) *State {
	taken := make(map[string]bool)
	for _, s := range b.a.states {
		if strings.HasPrefix(s.name, name) {
			taken[s.name] = true
		}
	}
	alt := name
	for n := 1; taken[alt]; n++ {
		alt = name + "_" + strconv.Itoa(n)
	}
	s := &State{name: alt, pos: pos, mode: b.a.mode}
	b.a.states = append(b.a.states, s)
	glog.V(2).Infof("state %s at position %d", alt, pos)
	return s
}

func (b *builder) processDevices(devices []Device) error {
	initial := b.newState("DEVICE_ADDRESS", 0)

	for _, dev := range devices {
		var addr *Matcher
		var deviceState *State

		if dev.Runtime {
			deviceState = b.newState("DEVICE", 1)
			addr = newRuntimeDeviceAddress(deviceState.name)
		} else {
			if dev.Address < 0 || dev.Address > 254 {
				return AddressOutOfRangeError{Address: dev.Address}
			}
			deviceState = b.newState("DEVICE_"+strconv.Itoa(dev.Address), 1)
			addr = Exact(U8, int64(dev.Address)).As(deviceState.name)
			a := dev.Address
			b.a.deviceAddress = &a
		}

		if initial.find(addr) != nil || initial.overlapping(addr) != nil {
			return ConflictingTransitionsError{State: initial.name, Matcher: addr}
		}
		initial.add(&Transition{matcher: addr, next: deviceState})

		for _, cmd := range dev.Commands {
			if err := b.sequence(addr, deviceState, cmd); err != nil {
				return err
			}
		}
	}
	return nil
}

// sequence threads one command through the prefix trie. Equal matchers
// merge into the existing path; overlapping but unequal siblings, or a
// data path colliding with another command's terminal, reject the build.
func (b *builder) sequence(addr *Matcher, deviceState *State, cmd Command) error {
	if len(cmd.Matchers) == 0 {
		return buildError("a command needs at least a function code matcher")
	}
	if cmd.Callback != "" {
		if _, ok := b.proto[cmd.Callback]; !ok {
			return UnknownCallbackError{Name: cmd.Callback}
		}
	}

	state := deviceState
	for i, m := range cmd.Matchers {
		last := i == len(cmd.Matchers)-1

		if t := state.find(m); t != nil {
			if last || t.setCRC {
				return ConflictingTransitionsError{State: state.name, Matcher: m}
			}
			state = t.next
			continue
		}
		if state.overlapping(m) != nil {
			return ConflictingTransitionsError{State: state.name, Matcher: m}
		}

		if last {
			return b.terminate(addr, state, m, cmd)
		}
		next := b.newState(state.childName(m), state.pos+m.Size())
		state.add(&Transition{matcher: m, next: next})
		state = next
	}
	// Unreachable: the last matcher always resolves above.
	return nil
}

// terminate closes a command path: the last data matcher leads to the CRC
// collecting state, which a CrcTail transition leaves into the terminal
// holding the operation.
func (b *builder) terminate(addr *Matcher, state *State, m *Matcher, cmd Command) error {
	callName := "NOTHING"
	if cmd.Callback != "" {
		callName = strings.ToUpper(cmd.Callback)
	}

	crcState := b.newState(state.name+"__"+callName+"__CRC", state.pos+m.Size())
	state.add(&Transition{matcher: m, next: crcState, setCRC: true})

	var op *Operation
	if cmd.Callback != "" {
		chain := append([]*Matcher{addr}, cmd.Matchers...)
		var err error
		op, err = newOperation(cmd.Callback, b.proto[cmd.Callback], chain)
		if err != nil {
			return err
		}
	}

	ready := b.newState("RDY_TO_CALL__"+callName, 0)
	ready.terminal = true
	ready.op = op
	crcState.add(&Transition{matcher: CrcTail(), next: ready})
	return nil
}
