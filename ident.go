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

// MEI object codes (function 43/14 "Read Device Identification").
const (
	VendorName          = 0x00
	ProductCode         = 0x01
	MajorMinorRevision  = 0x02
	VendorURL           = 0x03
	ProductName         = 0x04
	ModelName           = 0x05
	UserApplicationName = 0x06
	PrivateObjects0     = 0x80
	PrivateObjects1     = 0x81
	PrivateObjects2     = 0x82
	PrivateObjects3     = 0x83
	PrivateObjects4     = 0x84
	PrivateObjects5     = 0x85
	PrivateObjects6     = 0x86
	PrivateObjects7     = 0x87
)

// MEI conformity levels.
const (
	basicDeviceIdentification    = 0x01
	regularDeviceIdentification  = 0x02
	extendedDeviceIdentification = 0x03
)

// meiObjectOrder fixes the packing order of the reply builders.
var meiObjectOrder = []int{
	VendorName,
	ProductCode,
	MajorMinorRevision,
	VendorURL,
	ProductName,
	ModelName,
	UserApplicationName,
	PrivateObjects0,
	PrivateObjects1,
	PrivateObjects2,
	PrivateObjects3,
	PrivateObjects4,
	PrivateObjects5,
	PrivateObjects6,
	PrivateObjects7,
}

// meiObjectCategory maps each object code to its conformity category.
var meiObjectCategory = map[int]int{
	VendorName:          basicDeviceIdentification,
	ProductCode:         basicDeviceIdentification,
	MajorMinorRevision:  basicDeviceIdentification,
	VendorURL:           regularDeviceIdentification,
	ProductName:         regularDeviceIdentification,
	ModelName:           regularDeviceIdentification,
	UserApplicationName: regularDeviceIdentification,
	PrivateObjects0:     extendedDeviceIdentification,
	PrivateObjects1:     extendedDeviceIdentification,
	PrivateObjects2:     extendedDeviceIdentification,
	PrivateObjects3:     extendedDeviceIdentification,
	PrivateObjects4:     extendedDeviceIdentification,
	PrivateObjects5:     extendedDeviceIdentification,
	PrivateObjects6:     extendedDeviceIdentification,
	PrivateObjects7:     extendedDeviceIdentification,
}

// identObjectNames maps the description-file spelling of each object.
var identObjectNames = map[string]int{
	"vendor_name":           VendorName,
	"product_code":          ProductCode,
	"major_minor_revision":  MajorMinorRevision,
	"vendor_url":            VendorURL,
	"product_name":          ProductName,
	"model_name":            ModelName,
	"user_application_name": UserApplicationName,
	"private_objects_0":     PrivateObjects0,
	"private_objects_1":     PrivateObjects1,
	"private_objects_2":     PrivateObjects2,
	"private_objects_3":     PrivateObjects3,
	"private_objects_4":     PrivateObjects4,
	"private_objects_5":     PrivateObjects5,
	"private_objects_6":     PrivateObjects6,
	"private_objects_7":     PrivateObjects7,
}

// identificationCommands are the synthetic command entries injected into
// the chosen device when identification is active, with the callbacks
// they register.
func identificationCommands() []Command {
	return []Command{
		{
			Matchers: []*Matcher{ReportSlaveID()},
			Callback: "on_report_slave_id",
		},
		{
			Matchers: []*Matcher{
				EncapsulatedInterfaceTransport(),
				Exact(U8, 0x0E).As("READ_DEVICE_IDENTIFICATION"),
				ValueRange(U8, 0x01, 0x03).As("READ_DEVICE_ID_CODE"),
				Any(U8).As("OBJECT_ID"),
			},
			Callback: "on_read_device_identification",
		},
		{
			Matchers: []*Matcher{
				Diagnostics(),
				Any(U16).As("SUBFUNCTION"),
				Any(U16).As("DATA"),
			},
			Callback: "on_diagnostics",
		},
	}
}

func identificationCallbacks() []Callback {
	return []Callback{
		{Name: "on_report_slave_id"},
		{Name: "on_read_device_identification", Params: []Param{
			{Kind: U8, Name: "device_id"},
			{Kind: U8, Name: "object_id"},
		}},
		{Name: "on_diagnostics"},
	}
}

// reportSlaveIDFunction renders the function-17 reply builder. The
// identifier string is the product code, suffixed with the model name
// when one is declared.
func (g *Generator) reportSlaveIDFunction(level int) string {
	a := g.Automaton
	if a.ident == nil {
		return ""
	}
	id, _ := a.ident.value(ProductCode)
	if model, ok := a.ident.value(ModelName); ok {
		id += "_" + model
	}

	tab := g.indent(level)
	unit := g.unit()
	var b strings.Builder
	b.WriteString("/** Answer command 17 - Report slave id */\n")
	b.WriteString(tab + "inline void on_report_slave_id() {\n")
	b.WriteString(tab + unit + "Datagram::set_size(2); // Reset the count to 2 (ID + code)\n")
	fmt.Fprintf(&b, "%s%sDatagram::pack<uint8_t>(%d); // Byte count\n", tab, unit, len(id)+2)
	fmt.Fprintf(&b, "%s%sDatagram::pack<uint8_t>(%d); // slave ID\n", tab, unit, a.slaveID)
	b.WriteString(tab + unit + "Datagram::pack<uint8_t>(0xFF); // Status OK\n")
	fmt.Fprintf(&b, "%s%sDatagram::pack(\"%s\"); // Identifier\n", tab, unit, id)
	b.WriteString(tab + "}")
	return b.String()
}

// readDeviceIdentification renders the function-43/14 reply builder. The
// branch shape follows the conformity level: a single block for basic, a
// two-way branch on device_id for regular, three cumulative branches for
// extended. The level is selected by equality, so a lone regular
// declaration emits the two-branch shape even though extended slots
// exist.
func (g *Generator) readDeviceIdentification(level int) string {
	a := g.Automaton
	if a.ident == nil {
		return ""
	}

	t0 := g.indent(level)
	t1 := g.indent(level + 1)
	t2 := g.indent(level + 2)

	pack := func(code int) string {
		data, _ := a.ident.value(code)
		var b strings.Builder
		fmt.Fprintf(&b, "%sDatagram::pack<uint8_t>(0x%02x); // Object code\n", t2, code)
		fmt.Fprintf(&b, "%sDatagram::pack<uint8_t>(%d); // Length of the object\n", t2, len(data))
		fmt.Fprintf(&b, "%sDatagram::pack(\"%s\");\n", t2, data)
		return b.String()
	}

	// Group the declared objects up to the conformity level, in the
	// fixed object order.
	packs := map[int][]string{}
	counts := map[int]int{}
	for _, code := range meiObjectOrder {
		category := meiObjectCategory[code]
		if category > a.ident.conformity {
			continue
		}
		if _, ok := a.ident.value(code); !ok {
			continue
		}
		packs[category] = append(packs[category], pack(code))
		counts[category]++
	}

	var b strings.Builder
	b.WriteString("/** Answer command 43/14 */\n")
	b.WriteString(t0 + "inline void on_read_device_identification(uint8_t device_id, uint8_t object_id) {\n")
	b.WriteString(t1 + "Datagram::set_size(4); // Reset the count to 4 (addr/func/mei_type/DevId)\n")
	fmt.Fprintf(&b, "%sDatagram::pack<uint8_t>(%d); // Conformity level\n", t1, a.ident.conformity)
	b.WriteString(t1 + "Datagram::pack<uint8_t>(0); // No more to follow\n")
	b.WriteString(t1 + "Datagram::pack<uint8_t>(0); // Next object ID\n\n")

	writeAll := func(category int) {
		for _, p := range packs[category] {
			b.WriteString(p)
		}
	}

	switch a.ident.conformity {
	case basicDeviceIdentification:
		b.WriteString(t1 + "Datagram::pack<uint8_t>(0x03); // 3 objects\n")
		writeAll(basicDeviceIdentification)

	case regularDeviceIdentification:
		total := 3 + counts[regularDeviceIdentification]
		b.WriteString(t1 + "if (device_id == 1) { // Device ID 1 has a fixed number of objects\n")
		b.WriteString(t2 + "Datagram::pack<uint8_t>(0x03); // 3 objects\n")
		b.WriteString(t1 + "} else {\n")
		fmt.Fprintf(&b, "%sDatagram::pack<uint8_t>(%d); // %d objects\n", t2, total, total)
		b.WriteString(t1 + "}\n\n")
		b.WriteString(t1 + "if (device_id == 1) {\n")
		writeAll(basicDeviceIdentification)
		b.WriteString(t1 + "} else {\n")
		writeAll(basicDeviceIdentification)
		writeAll(regularDeviceIdentification)
		b.WriteString(t1 + "}\n")

	case extendedDeviceIdentification:
		l1c := counts[basicDeviceIdentification]
		l2c := counts[regularDeviceIdentification]
		l3c := counts[extendedDeviceIdentification]
		b.WriteString(t1 + "if (device_id == 1) { // Device ID 1 has a fixed number of objects\n")
		fmt.Fprintf(&b, "%sDatagram::pack<uint8_t>(%d); // %d objects\n", t2, l1c, l1c)
		b.WriteString(t1 + "} else if (device_id == 2) {\n")
		fmt.Fprintf(&b, "%sDatagram::pack<uint8_t>(%d); // %d + %d objects\n", t2, l1c+l2c, l1c, l2c)
		b.WriteString(t1 + "} else {\n")
		fmt.Fprintf(&b, "%sDatagram::pack<uint8_t>(%d); // %d + %d + %d objects\n", t2, l1c+l2c+l3c, l1c, l2c, l3c)
		b.WriteString(t1 + "}\n\n")
		b.WriteString(t1 + "if (device_id >= 1) {\n")
		writeAll(basicDeviceIdentification)
		b.WriteString(t1 + "}\n\n")
		b.WriteString(t1 + "if (device_id >= 2) {\n")
		writeAll(regularDeviceIdentification)
		b.WriteString(t1 + "}\n\n")
		b.WriteString(t1 + "if (device_id == 3) {\n")
		writeAll(extendedDeviceIdentification)
		b.WriteString(t1 + "}\n")
	}

	b.WriteString(t0 + "}")
	return b.String()
}
