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

package main

import (
	"bytes"
	goflag "flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adarwoo/modbusrc"
)

var (
	outputFlag  string
	tabSizeFlag int
)

var rootCmd = &cobra.Command{
	Use:   "modbusrc <description.toml>",
	Short: "Generate a Modbus RTU state machine from a declarative description",
	Long: `modbusrc compiles a declarative description of a Modbus RTU device
(its callbacks, the function codes it accepts and the byte-level shape
of each request) into a self-contained byte-driven state machine that
decodes incoming frames, dispatches to the callbacks and, in slave
mode, synthesizes the replies - including the identification
sub-protocols (function 17 and function 43/14).`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          generate,
}

func init() {
	rootCmd.Flags().StringVarP(&outputFlag, "output", "o", "",
		"write the generated code to `file` instead of stdout")
	rootCmd.Flags().IntVarP(&tabSizeFlag, "tab-size", "t", 4,
		"indentation width in spaces (0-8)")
	// Adopt the glog flags (-v, -logtostderr, ...).
	rootCmd.Flags().AddGoFlagSet(goflag.CommandLine)
}

func generate(cmd *cobra.Command, args []string) error {
	if tabSizeFlag < 0 || tabSizeFlag > 8 {
		return fmt.Errorf("the tab size must be between 0 and 8")
	}

	desc, err := modbusrc.LoadDescription(args[0])
	if err != nil {
		return err
	}
	automaton, err := modbusrc.Build(desc)
	if err != nil {
		return err
	}

	gen := modbusrc.NewGenerator(automaton)
	gen.TabSize = tabSizeFlag

	// Render fully before touching the sink so an error never leaves a
	// partial artifact behind.
	var buf bytes.Buffer
	if err := gen.Generate(&buf); err != nil {
		return err
	}
	if outputFlag == "" {
		_, err = os.Stdout.Write(buf.Bytes())
		return err
	}
	return os.WriteFile(outputFlag, buf.Bytes(), 0o644)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		os.Exit(1)
	}
}
