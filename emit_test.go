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
	"bytes"
	"strings"
	"testing"

	"github.com/sergi/go-diff/diffmatchpatch"
)

func testDescription() *Description {
	return &Description{
		Namespace: "relay",
		Callbacks: []Callback{
			{Name: "on_read", Params: []Param{{Kind: U16, Name: "reg"}}},
			{Name: "on_write", Params: []Param{{Kind: U16, Name: "reg"}, {Kind: U16, Name: "value"}}},
		},
		Devices: singleDevice(0x2C,
			Command{
				Matchers: []*Matcher{ReadHoldingRegisters(), ValueRange(U16, 0, 0x100)},
				Callback: "on_read",
			},
			Command{
				Matchers: []*Matcher{WriteSingleRegister(), ValueRange(U16, 0, 0x100), Any(U16)},
				Callback: "on_write",
			},
		),
	}
}

func generate(t *testing.T, d *Description) string {
	t.Helper()
	a, err := Build(d)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := NewGenerator(a).Generate(&buf); err != nil {
		t.Fatal(err)
	}
	return buf.String()
}

func TestSubstitute(t *testing.T) {
	for _, tc := range []struct {
		tmpl string
		vals map[string]string
		want string
	}{
		{
			tmpl: "a\n    @X@\nb",
			vals: map[string]string{"X": " hi "},
			want: "a\n    hi\nb",
		},
		{
			// An empty fragment collapses to the bare indentation.
			tmpl: "a\n    @X@\nb",
			vals: map[string]string{"X": ""},
			want: "a\n    \nb",
		},
		{
			tmpl: "@A@ and @B@",
			vals: map[string]string{"A": "1", "B": "2"},
			want: "1 and 2",
		},
		{
			// Unknown names are left alone.
			tmpl: "user@example.com",
			vals: map[string]string{"X": "1"},
			want: "user@example.com",
		},
		{
			tmpl: "no placeholder",
			vals: map[string]string{"X": "1"},
			want: "no placeholder",
		},
	} {
		if got := substitute(tc.tmpl, tc.vals); got != tc.want {
			t.Errorf("substitute(%q)=%q, want %q", tc.tmpl, got, tc.want)
		}
	}
}

func TestGenerateDeterministic(t *testing.T) {
	first := generate(t, testDescription())
	second := generate(t, testDescription())
	if first != second {
		dmp := diffmatchpatch.New()
		diffs := dmp.DiffMain(first, second, false)
		t.Fatalf("two runs differ:\n%s", dmp.DiffPrettyText(diffs))
	}
	if strings.Contains(first, "@") {
		t.Errorf("unexpanded placeholder in output")
	}
}

func TestGenerateSlaveShape(t *testing.T) {
	out := generate(t, testDescription())

	for _, want := range []string{
		"namespace relay {",
		"void on_read(uint16_t reg);",
		"void on_write(uint16_t reg, uint16_t value);",
		"DEVICE_44,",
		"case state_t::DEVICE_ADDRESS:",
		"if ( c == 44 ) {",
		// 16-bit fields guard on the accumulated count and decode c.
		"if ( cnt == 4 ) {",
		"auto c = ntoh(cnt-2);",
		"c <= 256",
		"case state_t::RDY_TO_CALL__ON_READ:",
		"on_read(ntoh(2));",
		"on_write(ntoh(2), ntoh(4));",
		// Mismatch on the function code reports the dedicated error.
		"error = error_t::illegal_function_code;",
		"error = error_t::illegal_data_value;",
		// No device address was left to runtime.
		"static constexpr auto device_address = uint8_t{44};",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output misses %q", want)
		}
	}
	if strings.Contains(out, "set_device_address") {
		t.Errorf("compile-time device must not emit a mutator")
	}
}

func TestGenerateRuntimeAddress(t *testing.T) {
	d := testDescription()
	d.Devices = []Device{{Runtime: true, Commands: d.Devices[0].Commands}}
	out := generate(t, d)

	for _, want := range []string{
		"inline static uint8_t device_address = 255;",
		"static inline void set_device_address(uint8_t new_address) {",
		"if ( c == device_address ) {",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output misses %q", want)
		}
	}
	if strings.Contains(out, "constexpr auto device_address") {
		t.Errorf("runtime device must not emit a compile-time constant")
	}
}

func TestGenerateMaster(t *testing.T) {
	d := testDescription()
	d.Mode = "master"
	out := generate(t, d)

	for _, want := range []string{
		"#include <asx/modbus_rtu_master.hpp>",
		"BAD_REQUEST, // The slave indicates an error",
		"static error_t process_reply() noexcept {",
		// Echo checks on the first two positions.
		"if ( c != buffer[0] ) {",
		"if ( c == (0x80 | buffer[1]) ) { // Bit 7 indicate an error",
		"static void initiate_transmit(uint8_t slave_addr, asx::modbus::command_t cmd) noexcept {",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output misses %q", want)
		}
	}
	if strings.Contains(out, "set_device_address") {
		t.Errorf("master template has no device address mutator")
	}
}

func TestGenerateOnReceived(t *testing.T) {
	d := testDescription()
	d.OnReceived = "on_frame"
	out := generate(t, d)
	for _, want := range []string{
		"void on_frame(std::string_view);",
		"on_frame(std::string_view{(char *)buffer, cnt});",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output misses %q", want)
		}
	}
}

func TestGenerateTabSize(t *testing.T) {
	a, err := Build(testDescription())
	if err != nil {
		t.Fatal(err)
	}
	g := NewGenerator(a)
	g.TabSize = 2
	var buf bytes.Buffer
	if err := g.Generate(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "\n      case state_t::DEVICE_44:") {
		t.Errorf("case labels should use the 2-space indent unit")
	}
}

func TestGenerateNoOpTerminal(t *testing.T) {
	d := &Description{
		Callbacks: []Callback{},
		Devices: singleDevice(1, Command{
			Matchers: []*Matcher{Exact(U8, 5), Any(U16)},
		}),
	}
	out := generate(t, d)
	if !strings.Contains(out, "case state_t::RDY_TO_CALL__NOTHING:") {
		t.Errorf("missing the no-op terminal case")
	}
	if !strings.Contains(out, "// Reply is ignored") {
		t.Errorf("a no-op terminal leaves the reply untouched")
	}
}
