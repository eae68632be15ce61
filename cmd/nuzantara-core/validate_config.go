// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nuzantara/core/pkg/config"
)

// ValidateConfigCmd loads, defaults, and validates a configuration file
// without starting the gateway.
type ValidateConfigCmd struct {
	File        string `arg:"" name:"file" help:"Configuration file path." type:"path"`
	Format      string `short:"f" help:"Output format: compact, verbose, json." default:"compact" enum:"compact,verbose,json"`
	PrintConfig bool   `short:"p" name:"print-config" help:"Print the expanded configuration (defaults applied, env vars resolved)."`
}

func (c *ValidateConfigCmd) Run(cli *CLI) error {
	cfg, loader, err := config.LoadConfigFile(context.Background(), c.File)
	if err != nil {
		return c.fail("load", err)
	}
	if loader != nil {
		defer loader.Close()
	}

	if c.PrintConfig {
		return c.printExpanded(cfg)
	}

	switch c.Format {
	case "json":
		c.printJSON(true, nil)
	case "verbose":
		fmt.Printf("Configuration Validation Successful\n")
		fmt.Printf("===================================\n\n")
		fmt.Printf("File:   %s\n", c.File)
		fmt.Printf("Status: OK Valid\n")
	default:
		fmt.Printf("%s: valid\n", c.File)
	}
	return nil
}

func (c *ValidateConfigCmd) fail(stage string, err error) error {
	switch c.Format {
	case "json":
		c.printJSON(false, []string{fmt.Sprintf("%s: %s", stage, err.Error())})
	case "verbose":
		fmt.Fprintf(os.Stderr, "Configuration %s Error\n", stage)
		fmt.Fprintf(os.Stderr, "File:    %s\n", c.File)
		fmt.Fprintf(os.Stderr, "Error:   %s\n", err.Error())
	default:
		fmt.Fprintf(os.Stderr, "%s: %s error: %s\n", c.File, stage, err.Error())
	}
	return fmt.Errorf("config validation failed")
}

func (c *ValidateConfigCmd) printJSON(valid bool, errs []string) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(struct {
		Valid  bool     `json:"valid"`
		File   string   `json:"file"`
		Errors []string `json:"errors,omitempty"`
	}{Valid: valid, File: c.File, Errors: errs})
}

func (c *ValidateConfigCmd) printExpanded(cfg *config.Config) error {
	switch c.Format {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg)
	default:
		fmt.Printf("# Expanded configuration from: %s\n", c.File)
		fmt.Printf("# (defaults applied, env vars resolved)\n\n")
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		if err := encoder.Encode(cfg); err != nil {
			return err
		}
		return encoder.Close()
	}
}
