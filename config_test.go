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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDescription(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "modbus.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDescription(t *testing.T) {
	path := writeDescription(t, `
mode = "slave"
namespace = "relay"
slave_id = 0x44
buffer_size = 32
on_received = "on_frame"

[callbacks]
on_read = ["u16"]
on_write = [["u16", "reg"], ["u16", "value"]]

[identification]
product_code = "PC"
model_name = "MX"

["device@0x2C"]
commands = [
    ["read_holding_registers", "u16(0,0x100)", "on_read"],
    ["write_single_register", "u16(0,0x100)", "u16(any)", "on_write"],
    ["custom", "u8[5,6]@SELECT"],
]
`)
	d, err := LoadDescription(path)
	require.NoError(t, err)

	assert.Equal(t, "slave", d.Mode)
	assert.Equal(t, "relay", d.Namespace)
	assert.Equal(t, 0x44, d.SlaveID)
	assert.Equal(t, 32, d.BufferSize)
	assert.Equal(t, "on_frame", d.OnReceived)

	require.Len(t, d.Callbacks, 2)
	assert.Equal(t, Callback{Name: "on_read", Params: []Param{{Kind: U16}}}, d.Callbacks[0])
	assert.Equal(t, Callback{Name: "on_write", Params: []Param{
		{Kind: U16, Name: "reg"},
		{Kind: U16, Name: "value"},
	}}, d.Callbacks[1])

	require.Len(t, d.Identification, 2)
	assert.Equal(t, Identify("product_code", "PC"), d.Identification[0])

	require.Len(t, d.Devices, 1)
	dev := d.Devices[0]
	assert.False(t, dev.Runtime)
	assert.Equal(t, 0x2C, dev.Address)
	require.Len(t, dev.Commands, 3)

	read := dev.Commands[0]
	assert.Equal(t, "on_read", read.Callback)
	require.Len(t, read.Matchers, 2)
	assert.True(t, read.Matchers[0].equal(Exact(U8, 0x03)))
	assert.Equal(t, "READ_HOLDING_REGISTERS", read.Matchers[0].alias)
	assert.True(t, read.Matchers[1].equal(ValueRange(U16, 0, 0x100)))

	// No trailing callback: the whole tuple is matchers.
	tail := dev.Commands[2]
	assert.Equal(t, "", tail.Callback)
	require.Len(t, tail.Matchers, 2)
	assert.True(t, tail.Matchers[1].equal(OneOf(U8, 5, 6)))
	assert.Equal(t, "SELECT", tail.Matchers[1].alias)

	// The loaded tree builds and generates.
	a, err := Build(d)
	require.NoError(t, err)
	assert.Equal(t, 32, a.BufferSize())
}

func TestLoadRuntimeDevice(t *testing.T) {
	path := writeDescription(t, `
[callbacks]

[device]
commands = [["read_coils", "u16(any)"]]
`)
	d, err := LoadDescription(path)
	require.NoError(t, err)
	require.Len(t, d.Devices, 1)
	assert.True(t, d.Devices[0].Runtime)
	require.NotNil(t, d.Callbacks)
	assert.Empty(t, d.Callbacks)
}

func TestLoadDefaults(t *testing.T) {
	path := writeDescription(t, `
[callbacks]
`)
	d, err := LoadDescription(path)
	require.NoError(t, err)
	assert.Equal(t, 0xFF, d.SlaveID)
	assert.Equal(t, "", d.Mode)

	a, err := Build(d)
	require.NoError(t, err)
	assert.Equal(t, "slave", a.mode)
	assert.Equal(t, "slave", a.namespace)
}

func TestLoadErrors(t *testing.T) {
	for _, tc := range []struct {
		name    string
		content string
		wantIn  string
	}{
		{
			name:    "bad device address",
			content: "[callbacks]\n[\"device@zz\"]\ncommands = []\n",
			wantIn:  "malformed device address",
		},
		{
			name:    "bad matcher value",
			content: "[callbacks]\n[device]\ncommands = [[\"u8(300)\"]]\n",
			wantIn:  "cannot cast the value 300",
		},
		{
			name:    "empty range",
			content: "[callbacks]\n[device]\ncommands = [[\"u8(5,5)\"]]\n",
			wantIn:  "empty range",
		},
		{
			name:    "float with a literal",
			content: "[callbacks]\n[device]\ncommands = [[\"read_coils\", \"f32(3)\"]]\n",
			wantIn:  "wildcard",
		},
		{
			name:    "unknown matcher",
			content: "[callbacks]\n[device]\ncommands = [[\"q8(3)\"]]\n",
			wantIn:  "unknown matcher",
		},
		{
			name:    "unknown identification object",
			content: "[callbacks]\n[identification]\nserial = \"x\"\n",
			wantIn:  "unknown identification object",
		},
		{
			name:    "bad slave id",
			content: "slave_id = 300\n[callbacks]\n",
			wantIn:  "does not fit a byte",
		},
		{
			name:    "bad parameter type",
			content: "[callbacks]\non_x = [\"u64\"]\n",
			wantIn:  "unknown parameter type",
		},
	} {
		path := writeDescription(t, tc.content)
		_, err := LoadDescription(path)
		require.Error(t, err, tc.name)
		assert.Contains(t, err.Error(), tc.wantIn, tc.name)
	}
}

func TestLoadAddressEncodingEquivalence(t *testing.T) {
	build := func(key string) *Automaton {
		path := writeDescription(t, `
[callbacks]
on_read = ["u16"]

["`+key+`"]
commands = [["read_holding_registers", "u16(0,0x100)", "on_read"]]
`)
		d, err := LoadDescription(path)
		require.NoError(t, err)
		a, err := Build(d)
		require.NoError(t, err)
		return a
	}
	hex := build("device@0x17")
	dec := build("device@23")
	assert.Equal(t, hex.States(), dec.States())
}
