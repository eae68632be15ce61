// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package evidence

import "strings"

// Template declares the headings a query class's answer is expected to
// contain. Enforcement is additive and declarative: missing sections
// are appended with a placeholder rather than the answer being
// rewritten, since the pipeline must never fail or hallucinate content
// on behalf of the model.
type Template struct {
	Class            QueryClass
	RequiredHeadings []string
}

// TemplateSet maps a QueryClass to its Template.
type TemplateSet struct {
	templates map[QueryClass]Template
}

// DefaultTemplates returns the built-in visa/tax/company-setup
// templates used when no operator configuration overrides them.
func DefaultTemplates() *TemplateSet {
	return &TemplateSet{templates: map[QueryClass]Template{
		ClassVisa: {
			Class:            ClassVisa,
			RequiredHeadings: []string{"Requirements", "Process", "Timeline"},
		},
		ClassTax: {
			Class:            ClassTax,
			RequiredHeadings: []string{"Obligation", "Calculation", "Deadline"},
		},
		ClassCompanySetup: {
			Class:            ClassCompanySetup,
			RequiredHeadings: []string{"Entity Type", "Requirements", "Steps"},
		},
	}}
}

// NewTemplateSet builds a TemplateSet from an explicit list, letting
// operators override or add query classes via configuration.
func NewTemplateSet(templates []Template) *TemplateSet {
	ts := &TemplateSet{templates: make(map[QueryClass]Template, len(templates))}
	for _, t := range templates {
		ts.templates[t.Class] = t
	}
	return ts
}

// Enforce appends any RequiredHeadings for class that answer does not
// already contain (case-insensitive substring match), each as a section
// header followed by a line saying the sources do not cover it.
// ClassGeneral and unknown classes pass through unchanged.
func (ts *TemplateSet) Enforce(class QueryClass, answer string) string {
	tmpl, ok := ts.templates[class]
	if !ok {
		return answer
	}

	lower := strings.ToLower(answer)
	var missing []string
	for _, heading := range tmpl.RequiredHeadings {
		if !strings.Contains(lower, strings.ToLower(heading)) {
			missing = append(missing, heading)
		}
	}
	if len(missing) == 0 {
		return answer
	}

	var sb strings.Builder
	sb.WriteString(answer)
	for _, heading := range missing {
		sb.WriteString("\n\n## ")
		sb.WriteString(heading)
		sb.WriteString("\n(Not covered in the available sources.)")
	}
	return sb.String()
}
