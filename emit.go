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
	"io"
	"strconv"
	"strings"

	"github.com/golang/glog"
)

// Generator renders an Automaton into the target source text. Rendering
// is deterministic: states are emitted in creation order, transition
// groups in first-seen order, transitions in insertion order.
type Generator struct {
	Automaton *Automaton

	// TabSize is the indentation unit in spaces, 0 to 8.
	TabSize int
}

func NewGenerator(a *Automaton) *Generator {
	return &Generator{Automaton: a, TabSize: 4}
}

func (g *Generator) unit() string { return strings.Repeat(" ", g.TabSize) }

func (g *Generator) indent(level int) string {
	return strings.Repeat(" ", g.TabSize*level)
}

// Generate writes the generated source to w in a single pass.
func (g *Generator) Generate(w io.Writer) error {
	tmpl := templateSlave
	if g.Automaton.mode == "master" {
		tmpl = templateMaster
	}
	out := substitute(tmpl, g.placeholders())
	glog.V(1).Infof("emitting %d bytes in %s mode", len(out), g.Automaton.mode)
	_, err := io.WriteString(w, out)
	return err
}

// substitute replaces every @NAME@ found in vals by the trimmed fragment.
// The surrounding whitespace of the placeholder is preserved, so an empty
// fragment collapses to the bare indentation.
func substitute(tmpl string, vals map[string]string) string {
	var out strings.Builder
	out.Grow(len(tmpl))
	for {
		open := strings.IndexByte(tmpl, '@')
		if open < 0 {
			out.WriteString(tmpl)
			return out.String()
		}
		end := strings.IndexByte(tmpl[open+1:], '@')
		if end < 0 {
			out.WriteString(tmpl)
			return out.String()
		}
		end += open + 1
		frag, ok := vals[tmpl[open+1:end]]
		if !ok {
			out.WriteString(tmpl[:open+1])
			tmpl = tmpl[open+1:]
			continue
		}
		out.WriteString(tmpl[:open])
		out.WriteString(strings.TrimSpace(frag))
		tmpl = tmpl[end+1:]
	}
}

func (g *Generator) placeholders() map[string]string {
	a := g.Automaton
	return map[string]string{
		"NAMESPACE":             a.namespace,
		"BUFSIZE":               strconv.Itoa(a.bufSize),
		"ENUMS":                 g.enums(2),
		"CASES":                 g.cases(3),
		"CALLBACKS":             g.callbacks(2),
		"INCOMPLETE":            g.incomplete(2),
		"PROTOTYPES":            g.prototypes(1),
		"DEVICE_ADDRESS":        g.deviceAddress(2),
		"set_device_address":    g.setDeviceAddress(2),
		"READY_REPLY_CALLBACK":  g.readyReplyCallback(),
		"SLAVE_ID_FUNCTION":     g.reportSlaveIDFunction(1),
		"SLAVE_READ_ID_REQUEST": g.readDeviceIdentification(1),
	}
}

func (g *Generator) enums(level int) string {
	tab := g.indent(level)
	names := make([]string, len(g.Automaton.states))
	for i, s := range g.Automaton.states {
		names[i] = tab + s.name
	}
	return strings.Join(names, ",\n")
}

func caseLabel(tab, name string) string {
	return tab + "case state_t::" + name + ":\n"
}

// cases renders the process_char switch body: one block per non-terminal
// state, then a bare label per terminal state so an extra byte after a
// complete frame falls through to the error default.
func (g *Generator) cases(level int) string {
	var b strings.Builder
	tab := g.indent(level)
	for _, s := range g.Automaton.states {
		if s.terminal {
			continue
		}
		b.WriteString(caseLabel(tab, s.name))
		b.WriteString(g.stateCode(s, level))
	}
	for _, s := range g.Automaton.states {
		if s.terminal {
			b.WriteString(caseLabel(tab, s.name))
		}
	}
	return b.String()
}

// incomplete lists every non-terminal state label: reaching the reply
// phase in one of them means the frame stopped short.
func (g *Generator) incomplete(level int) string {
	var b strings.Builder
	tab := g.indent(level + 1)
	for _, s := range g.Automaton.states {
		if !s.terminal {
			b.WriteString(caseLabel(tab, s.name))
		}
	}
	return b.String()
}

// callbacks renders the reply-phase blocks invoking the captured
// operations.
func (g *Generator) callbacks(level int) string {
	var b strings.Builder
	for _, s := range g.Automaton.states {
		if !s.terminal {
			continue
		}
		b.WriteString(caseLabel(g.indent(level+1), s.name))
		tab := g.indent(level + 2)
		if s.op != nil {
			b.WriteString(tab + s.op.renderCall() + "\n")
		} else {
			b.WriteString(tab + "// Reply is ignored\n")
		}
		b.WriteString(tab + "break;\n")
	}
	return b.String()
}

func (g *Generator) prototypes(level int) string {
	var b strings.Builder
	tab := g.indent(level)
	for _, cb := range g.Automaton.callbacks {
		b.WriteString(tab + "void " + cb.Name + "(")
		for i, p := range cb.Params {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(p.Kind.ctype())
			if p.Name != "" {
				b.WriteString(" " + p.Name)
			}
		}
		b.WriteString(");\n")
	}
	if g.Automaton.onReceived != "" {
		b.WriteString(tab + "void " + g.Automaton.onReceived + "(std::string_view);")
	}
	return b.String()
}

func (g *Generator) deviceAddress(level int) string {
	tab := g.indent(level)
	if g.Automaton.deviceAddress == nil {
		return "///< Runtime ID. Set-up before starting the modbus\n" +
			tab + "inline static uint8_t device_address = 255;"
	}
	return "///< Device ID\n" +
		tab + fmt.Sprintf("static constexpr auto device_address = uint8_t{%d};", *g.Automaton.deviceAddress)
}

func (g *Generator) setDeviceAddress(level int) string {
	if g.Automaton.deviceAddress != nil {
		return ""
	}
	tab := g.indent(level)
	return "///< Set the device address\n" +
		tab + "static inline void set_device_address(uint8_t new_address) {\n" +
		tab + g.unit() + "device_address = new_address;\n" +
		tab + "}"
}

func (g *Generator) readyReplyCallback() string {
	if g.Automaton.onReceived == "" {
		return ""
	}
	return g.Automaton.onReceived + "(std::string_view{(char *)buffer, cnt});"
}

// groupKey buckets sibling transitions so same-width matchers share one
// decoded value and one guard.
type groupKey struct {
	kind        Kind
	crcTail     bool
	runtimeAddr bool
}

type transitionGroup struct {
	pos         int // position of the owning state
	transitions []*Transition
}

// transitionCode renders one transition: the predicate test wrapping the
// state change, or the bare state change for a wildcard.
func (g *Generator) transitionCode(t *Transition, level int) (hasTest bool, code string) {
	assign := "state = state_t::" + t.next.name + ";"
	test, ok := t.matcher.renderPredicate("c")
	if !ok {
		return false, assign
	}
	tab := g.indent(level)
	return true, "if ( " + test + " ) {\n" + tab + g.unit() + assign + "\n" + tab + "}"
}

// groupCode renders one width group. Multi-byte groups first guard on the
// accumulated byte count and decode the big-endian value; the CRC group
// only waits for its two bytes, since the CRC is checked against the
// running sum once the frame closes.
func (g *Generator) groupCode(tg *transitionGroup, level int) string {
	tab := g.indent(level)
	unit := g.unit()
	size := tg.transitions[0].matcher.Size()
	extraIndent := 0
	if size > 1 {
		extraIndent = 1
	}
	extra := g.indent(extraIndent)

	if first := tg.transitions[0]; first.next.terminal {
		return tab + "if ( cnt == " + strconv.Itoa(tg.pos+size) + " ) {\n" +
			tab + unit + "state = state_t::" + first.next.name + ";"
	}

	var data string
	switch size {
	case 2:
		data = tab + extra + "auto c = ntoh(cnt-2);\n\n"
	case 4:
		data = tab + extra + "auto c = ntohl(cnt-4);\n\n"
	}

	var retval string
	testCnt := 0
	for i, t := range tg.transitions {
		if i > 0 {
			retval += " else "
		} else {
			retval += tab + extra
		}
		hasTest, code := g.transitionCode(t, level+extraIndent)
		retval += code
		if hasTest {
			testCnt++
		}
	}

	if testCnt > 0 {
		retval = data + retval + " else {"
		switch tg.pos {
		case 0:
			retval += "\n" + tab + extra + unit + "error = error_t::ignore_frame;"
			retval += "\n" + tab + extra + unit + "state = state_t::IGNORE;"
		case 1:
			retval += "\n" + tab + extra + unit + "error = error_t::illegal_function_code;"
			retval += "\n" + tab + extra + unit + "state = state_t::ERROR;"
		default:
			retval += "\n" + tab + extra + unit + "error = error_t::illegal_data_value;"
			retval += "\n" + tab + extra + unit + "state = state_t::ERROR;"
		}
	}

	if size == 1 {
		return retval
	}
	if testCnt > 0 {
		return tab + "if ( cnt == " + strconv.Itoa(tg.pos+size) + " ) {\n" +
			retval + "\n" + unit + tab + "}"
	}
	return tab + "if ( cnt == " + strconv.Itoa(tg.pos+size) + " ) {\n" + retval
}

// stateCode renders the body of one non-terminal case. In master mode the
// first two positions first check the echo of the address and function
// code that were just transmitted.
func (g *Generator) stateCode(s *State, level int) string {
	tab := g.indent(level)
	unit := g.unit()
	var retval string

	if s.pos == 0 && s.mode == "master" {
		retval += strings.Join([]string{"",
			"// The address must match the address just send and still in the buffer\n",
			"if ( c != buffer[0] ) {\n",
			"    error = error_t::ignore_frame;\n",
			"    state = state_t::IGNORE;\n",
			"    break;\n",
			"}\n",
		}, tab+unit)
	}
	if s.pos == 1 && s.mode == "master" {
		retval += strings.Join([]string{"",
			"// The command must match the command just sent\n",
			"if ( c == (0x80 | buffer[1]) ) { // Bit 7 indicate an error\n",
			"   state = state_t::BAD_REQUEST;\n",
			"   break;\n",
			"} else if ( c != buffer[1] ) {\n",
			"   state = state_t::ERROR;\n",
			"   break;\n",
			"}\n\n",
		}, tab+unit)
	}

	var order []groupKey
	groups := map[groupKey]*transitionGroup{}
	for _, t := range s.transitions {
		key := groupKey{
			kind:        t.matcher.kind,
			crcTail:     t.matcher.crcTail,
			runtimeAddr: t.matcher.runtimeAddr,
		}
		tg, ok := groups[key]
		if !ok {
			tg = &transitionGroup{pos: s.pos}
			groups[key] = tg
			order = append(order, key)
		}
		tg.transitions = append(tg.transitions, t)
	}
	for _, key := range order {
		retval += g.groupCode(groups[key], level+1)
	}

	if strings.Contains(retval, "{") {
		return retval + "\n" + tab + unit + "}\n" + tab + unit + "break;\n"
	}
	return retval + "\n" + tab + unit + "break;\n"
}
