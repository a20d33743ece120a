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
	"errors"
	"reflect"
	"testing"
)

func singleDevice(addr int, cmds ...Command) []Device {
	return []Device{{Address: addr, Commands: cmds}}
}

func TestBuildSingleCommand(t *testing.T) {
	a, err := Build(&Description{
		Callbacks: []Callback{{Name: "on_read", Params: []Param{{Kind: U16}}}},
		Devices: singleDevice(0x01, Command{
			Matchers: []*Matcher{Exact(U8, 0x03), ValueRange(U16, 0, 0x100)},
			Callback: "on_read",
		}),
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{
		"DEVICE_ADDRESS",
		"DEVICE_1",
		"DEVICE_1_2",
		"DEVICE_1_2__ON_READ__CRC",
		"RDY_TO_CALL__ON_READ",
	}
	if got := a.States(); !reflect.DeepEqual(got, want) {
		t.Errorf("states=%v, want %v", got, want)
	}
	if a.bufSize != 7 {
		t.Errorf("buffer size=%d, want 7", a.bufSize)
	}

	ready := a.states[len(a.states)-1]
	if !ready.terminal || ready.op == nil {
		t.Fatalf("last state %s is not an operation terminal", ready.name)
	}
	if got := ready.op.renderCall(); got != "on_read(ntoh(2));" {
		t.Errorf("call=%q, want on_read(ntoh(2));", got)
	}
}

func TestBuildPrefixSharing(t *testing.T) {
	shared := func() []*Matcher {
		return []*Matcher{Exact(U8, 0x03), ValueRange(U16, 0, 0x100)}
	}
	a, err := Build(&Description{
		Callbacks: []Callback{{Name: "on_a"}, {Name: "on_b"}},
		Devices: singleDevice(1,
			Command{Matchers: append(shared(), Exact(U8, 1)), Callback: "on_a"},
			Command{Matchers: append(shared(), Exact(U8, 2)), Callback: "on_b"},
		),
	})
	if err != nil {
		t.Fatal(err)
	}

	// A single path decodes the shared prefix...
	fork := a.states[3]
	if fork.name != "DEVICE_1_2_4" || len(fork.transitions) != 2 {
		t.Fatalf("fork state %s has %d transitions, want DEVICE_1_2_4 with 2",
			fork.name, len(fork.transitions))
	}
	// ...and each command keeps its own terminal.
	terminals := 0
	for _, s := range a.states {
		if s.terminal {
			terminals++
		}
	}
	if terminals != 2 {
		t.Errorf("terminals=%d, want 2", terminals)
	}
}

func TestBuildConflictingSiblings(t *testing.T) {
	_, err := Build(&Description{
		Callbacks: []Callback{{Name: "on_a"}, {Name: "on_b"}},
		Devices: singleDevice(1,
			Command{Matchers: []*Matcher{Exact(U8, 9), Exact(U8, 5), Any(U8)}, Callback: "on_a"},
			Command{Matchers: []*Matcher{Exact(U8, 9), OneOf(U8, 5, 6), Any(U8)}, Callback: "on_b"},
		),
	})
	var conflict ConflictingTransitionsError
	if !errors.As(err, &conflict) {
		t.Fatalf("err=%v, want ConflictingTransitionsError", err)
	}
}

func TestBuildDuplicateCommand(t *testing.T) {
	cmd := func(cb string) Command {
		return Command{Matchers: []*Matcher{Exact(U8, 3), Any(U16)}, Callback: cb}
	}
	for _, other := range []string{"on_a", "on_b"} {
		_, err := Build(&Description{
			Callbacks: []Callback{{Name: "on_a"}, {Name: "on_b"}},
			Devices:   singleDevice(1, cmd("on_a"), cmd(other)),
		})
		var conflict ConflictingTransitionsError
		if !errors.As(err, &conflict) {
			t.Errorf("duplicate command with %s: err=%v, want ConflictingTransitionsError", other, err)
		}
	}
}

func TestBuildTerminalCollision(t *testing.T) {
	// One command ends where the other keeps reading data.
	_, err := Build(&Description{
		Callbacks: []Callback{{Name: "on_short"}, {Name: "on_long"}},
		Devices: singleDevice(1,
			Command{Matchers: []*Matcher{Exact(U8, 3), Any(U16)}, Callback: "on_short"},
			Command{Matchers: []*Matcher{Exact(U8, 3), Any(U16), Any(U16)}, Callback: "on_long"},
		),
	})
	var conflict ConflictingTransitionsError
	if !errors.As(err, &conflict) {
		t.Fatalf("err=%v, want ConflictingTransitionsError", err)
	}
}

func TestBuildDuplicateDeviceAddress(t *testing.T) {
	dev := Device{Address: 5, Commands: []Command{
		{Matchers: []*Matcher{Exact(U8, 1), Any(U16)}},
	}}
	_, err := Build(&Description{
		Callbacks: []Callback{},
		Devices:   []Device{dev, dev},
	})
	var conflict ConflictingTransitionsError
	if !errors.As(err, &conflict) {
		t.Fatalf("err=%v, want ConflictingTransitionsError", err)
	}
}

func TestBuildAddressEncoding(t *testing.T) {
	build := func(addr int) *Automaton {
		a, err := Build(&Description{
			Callbacks: []Callback{{Name: "on_read", Params: []Param{{Kind: U16}}}},
			Devices: singleDevice(addr, Command{
				Matchers: []*Matcher{Exact(U8, 0x03), Any(U16)},
				Callback: "on_read",
			}),
		})
		if err != nil {
			t.Fatal(err)
		}
		return a
	}
	hex, dec := build(0x17), build(23)
	if !reflect.DeepEqual(hex.States(), dec.States()) {
		t.Errorf("device@0x17 and device@23 differ: %v vs %v", hex.States(), dec.States())
	}
}

func TestBuildRuntimeAddress(t *testing.T) {
	a, err := Build(&Description{
		Callbacks: []Callback{},
		Devices: []Device{{Runtime: true, Commands: []Command{
			{Matchers: []*Matcher{Exact(U8, 1), Any(U16)}},
		}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if a.deviceAddress != nil {
		t.Errorf("runtime device must not pin a compile-time address, got %d", *a.deviceAddress)
	}
	initial := a.states[0]
	if len(initial.transitions) != 1 || !initial.transitions[0].matcher.runtimeAddr {
		t.Errorf("initial state must guard on the runtime device address")
	}
}

func TestBuildBufferSizing(t *testing.T) {
	desc := &Description{
		Callbacks: []Callback{},
		Devices: singleDevice(1,
			Command{Matchers: []*Matcher{Exact(U8, 3), Any(U16)}},
			Command{Matchers: []*Matcher{Exact(U8, 16), Any(U16), Any(U16), Any(U32)}},
		),
	}
	a, err := Build(desc)
	if err != nil {
		t.Fatal(err)
	}
	// Largest command is 1+2+2+4 bytes, plus address, function code and CRC.
	if a.bufSize != 13 {
		t.Errorf("buffer size=%d, want 13", a.bufSize)
	}

	desc.BufferSize = 64
	if a, err = Build(desc); err != nil {
		t.Fatal(err)
	}
	if a.bufSize != 64 {
		t.Errorf("buffer size=%d, want the floor 64", a.bufSize)
	}
}

func TestBuildNoCallbackCommand(t *testing.T) {
	a, err := Build(&Description{
		Callbacks: []Callback{},
		Devices: singleDevice(1, Command{
			Matchers: []*Matcher{Exact(U8, 5), Any(U16)},
		}),
	})
	if err != nil {
		t.Fatal(err)
	}
	ready := a.states[len(a.states)-1]
	if ready.name != "RDY_TO_CALL__NOTHING" || !ready.terminal || ready.op != nil {
		t.Errorf("want a no-op terminal RDY_TO_CALL__NOTHING, got %s (op=%v)", ready.name, ready.op)
	}
}

func TestBuildErrors(t *testing.T) {
	valid := singleDevice(1, Command{Matchers: []*Matcher{Exact(U8, 3)}})
	for _, tc := range []struct {
		name string
		desc *Description
		want error
	}{
		{
			name: "missing callbacks",
			desc: &Description{Devices: valid},
			want: MissingCallbacksError{},
		},
		{
			name: "bad mode",
			desc: &Description{Mode: "client", Callbacks: []Callback{}},
			want: InvalidModeError{Mode: "client"},
		},
		{
			name: "bad callback name",
			desc: &Description{Callbacks: []Callback{{Name: "3bad"}}},
			want: InvalidIdentifierError{Name: "3bad"},
		},
		{
			name: "unknown callback",
			desc: &Description{
				Callbacks: []Callback{},
				Devices: singleDevice(1, Command{
					Matchers: []*Matcher{Exact(U8, 3)},
					Callback: "on_missing",
				}),
			},
			want: UnknownCallbackError{Name: "on_missing"},
		},
		{
			name: "address out of range",
			desc: &Description{
				Callbacks: []Callback{},
				Devices:   singleDevice(255, Command{Matchers: []*Matcher{Exact(U8, 3)}}),
			},
			want: AddressOutOfRangeError{Address: 255},
		},
	} {
		_, err := Build(tc.desc)
		if err == nil {
			t.Errorf("%s: Build succeeded, want %v", tc.name, tc.want)
			continue
		}
		if err.Error() != tc.want.Error() {
			t.Errorf("%s: err=%v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestBuildSizeMismatch(t *testing.T) {
	_, err := Build(&Description{
		Callbacks: []Callback{{Name: "on_x", Params: []Param{{Kind: U8}}}},
		Devices: singleDevice(1, Command{
			Matchers: []*Matcher{Exact(U8, 3), ValueRange(U16, 0, 0x200)},
			Callback: "on_x",
		}),
	})
	var mismatch SizeMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("err=%v, want SizeMismatchError", err)
	}
}
