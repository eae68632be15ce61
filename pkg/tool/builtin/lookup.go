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

package builtin

import (
	"database/sql"
	"fmt"

	"github.com/nuzantara/core/pkg/errs"
	"github.com/nuzantara/core/pkg/tool"
)

// PricingLookupTool answers "how much does X cost" questions from a
// structured price list rather than free-text retrieval, so figures
// are exact rather than paraphrased out of a document.
type PricingLookupTool struct {
	db *sql.DB
}

// NewPricingLookupTool wires a *sql.DB holding a `pricing` table
// (service_code, service_name, price_idr, notes) into a callable tool.
func NewPricingLookupTool(db *sql.DB) *PricingLookupTool { return &PricingLookupTool{db: db} }

func (t *PricingLookupTool) Name() string          { return "pricing_lookup" }
func (t *PricingLookupTool) Description() string   { return "Look up the current price for a named service (visa, KITAS, PT PMA setup, tax filing, etc)." }
func (t *PricingLookupTool) IsLongRunning() bool    { return false }
func (t *PricingLookupTool) RequiresApproval() bool { return false }

func (t *PricingLookupTool) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"service": map[string]any{"type": "string"}},
		"required":   []string{"service"},
	}
}

func (t *PricingLookupTool) Call(ctx tool.Context, args map[string]any) (map[string]any, error) {
	service, _ := args["service"].(string)
	if service == "" {
		return nil, errs.Wrap(errs.ErrValidation, "pricing_lookup: service is required", nil)
	}
	row := t.db.QueryRowContext(ctx, `
		SELECT service_code, service_name, price_idr, notes FROM pricing
		WHERE service_name LIKE '%' || ? || '%' OR service_code = ?
		ORDER BY LENGTH(service_name) ASC LIMIT 1`, service, service)

	var code, name, notes string
	var price int64
	if err := row.Scan(&code, &name, &price, &notes); err != nil {
		if err == sql.ErrNoRows {
			return map[string]any{"found": false}, nil
		}
		return nil, errs.Wrap(errs.ErrTool, "pricing_lookup", err)
	}
	return map[string]any{
		"found":        true,
		"service_code": code,
		"service_name": name,
		"price_idr":    price,
		"notes":        notes,
	}, nil
}

var _ tool.CallableTool = (*PricingLookupTool)(nil)

// TeamLookupTool answers "who handles X" questions from a structured
// staff directory.
type TeamLookupTool struct {
	db *sql.DB
}

// NewTeamLookupTool wires a *sql.DB holding a `team_members` table
// (name, role, specialty, contact) into a callable tool.
func NewTeamLookupTool(db *sql.DB) *TeamLookupTool { return &TeamLookupTool{db: db} }

func (t *TeamLookupTool) Name() string          { return "team_lookup" }
func (t *TeamLookupTool) Description() string   { return "Look up which team member handles a given specialty (visa, tax, legal, company setup)." }
func (t *TeamLookupTool) IsLongRunning() bool    { return false }
func (t *TeamLookupTool) RequiresApproval() bool { return false }

func (t *TeamLookupTool) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"specialty": map[string]any{"type": "string"}},
		"required":   []string{"specialty"},
	}
}

func (t *TeamLookupTool) Call(ctx tool.Context, args map[string]any) (map[string]any, error) {
	specialty, _ := args["specialty"].(string)
	if specialty == "" {
		return nil, errs.Wrap(errs.ErrValidation, "team_lookup: specialty is required", nil)
	}
	rows, err := t.db.QueryContext(ctx, `
		SELECT name, role, specialty, contact FROM team_members
		WHERE specialty LIKE '%' || ? || '%'`, specialty)
	if err != nil {
		return nil, errs.Wrap(errs.ErrTool, "team_lookup", err)
	}
	defer rows.Close()

	var members []map[string]any
	for rows.Next() {
		var name, role, spec, contact string
		if err := rows.Scan(&name, &role, &spec, &contact); err != nil {
			return nil, errs.Wrap(errs.ErrTool, "team_lookup scan", err)
		}
		members = append(members, map[string]any{
			"name": name, "role": role, "specialty": spec, "contact": contact,
		})
	}
	return map[string]any{"members": members, "count": fmt.Sprint(len(members))}, rows.Err()
}

var _ tool.CallableTool = (*TeamLookupTool)(nil)
