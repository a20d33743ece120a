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

// Param is one declared callback parameter.
type Param struct {
	Kind Kind
	Name string // optional
}

// Operation describes the callback invocation attached to a terminal
// state: the callback, its declared prototype and the chain of matchers
// whose captured bytes feed it (device-address matcher first, then each
// command matcher in frame order).
type Operation struct {
	name      string
	prototype []Param
	chain     []*Matcher
}

func newOperation(name string, prototype []Param, chain []*Matcher) (*Operation, error) {
	op := &Operation{name: name, prototype: prototype, chain: chain}
	if err := op.validate(); err != nil {
		return nil, err
	}
	return op, nil
}

// validate aligns the prototype, right to left, against the tail of the
// capture chain and checks every pairing with the matcher fit rule.
func (o *Operation) validate() error {
	chain := o.chain
	for i := len(o.prototype) - 1; i >= 0; i-- {
		if len(chain) == 0 {
			return buildError(fmt.Sprintf(
				"callback %s declares more parameters than %s captures", o.name, o.name))
		}
		m := chain[len(chain)-1]
		chain = chain[:len(chain)-1]
		if !m.fits(o.prototype[i].Kind) {
			return SizeMismatchError{
				Callback: o.name,
				Position: i + 1,
				Matcher:  m,
				Param:    o.prototype[i],
			}
		}
	}
	return nil
}

// renderCall emits the callback invocation. Each parameter reads the
// frame buffer at the offset where its matcher's bytes start, adjusted so
// a narrower parameter reads the least-significant bytes of a wider
// matched field.
func (o *Operation) renderCall() string {
	values := make([]string, len(o.prototype))
	chain := o.chain
	for i := len(o.prototype) - 1; i >= 0; i-- {
		m := chain[len(chain)-1]
		chain = chain[:len(chain)-1]

		offset := 0
		for _, item := range chain {
			offset += item.Size()
		}
		param := o.prototype[i]
		offset += m.Size() - param.Kind.size()

		switch param.Kind.size() {
		case 1:
			values[i] = fmt.Sprintf("buffer[%d]", offset)
		case 2:
			values[i] = fmt.Sprintf("ntoh(%d)", offset)
		default:
			values[i] = fmt.Sprintf("ntohl(%d)", offset)
		}
	}
	return fmt.Sprintf("%s(%s);", o.name, strings.Join(values, ", "))
}
