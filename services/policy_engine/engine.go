// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package policy_engine finds and masks sensitive financial data in free
// text, such as card numbers, social security numbers, bank details and
// credentials.
package policy_engine

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spendoapp/spendo/services/policy_engine/enforcement"
)

// PublicClassification is returned by Classify when nothing matches.
const PublicClassification = "public"

// PolicyEngine holds the compiled classifications.
//
// # Thread Safety
//
// Immutable after construction. Safe for concurrent use.
type PolicyEngine struct {
	classifications []Classification
}

// NewPolicyEngine loads the policy embedded in the binary.
func NewPolicyEngine() (*PolicyEngine, error) {
	return NewPolicyEngineFromYAML(enforcement.SensitiveDataPatterns)
}

// NewPolicyEngineFromYAML builds an engine from a policy document.
//
// # Description
//
// Unmarshals the YAML, compiles every regex and sorts classifications by
// priority so overlapping matches resolve to the higher priority one.
//
// # Outputs
//
//   - *PolicyEngine: Ready to use.
//   - error: Malformed YAML, an invalid regex or an unknown checksum.
func NewPolicyEngineFromYAML(data []byte) (*PolicyEngine, error) {
	var file PolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the policy file: %w", err)
	}
	if err := file.CompileRegexes(); err != nil {
		return nil, fmt.Errorf("failed to compile a regex %w", err)
	}
	file.SortByPriority()
	return &PolicyEngine{classifications: file.Classifications}, nil
}

// Classify returns the name of the highest priority classification with
// a match in text, or PublicClassification.
func (e *PolicyEngine) Classify(text string) string {
	for _, c := range e.classifications {
		for i := range c.Patterns {
			if len(e.matches(&c.Patterns[i], text)) > 0 {
				return c.Name
			}
		}
	}
	return PublicClassification
}

// Scan returns every non-overlapping finding in text, ordered by
// position. Where matches overlap the higher priority classification
// is kept.
func (e *PolicyEngine) Scan(text string) []Finding {
	var all []Finding
	for _, c := range e.classifications {
		for i := range c.Patterns {
			p := &c.Patterns[i]
			for _, span := range e.matches(p, text) {
				all = append(all, Finding{
					Start:              span[0],
					End:                span[1],
					MatchedContent:     text[span[0]:span[1]],
					ClassificationName: c.Name,
					PatternId:          p.Id,
					PatternDescription: p.Description,
					Confidence:         p.Confidence,
				})
			}
		}
	}

	// all is in priority order, so the first finding to claim a byte wins.
	kept := make([]Finding, 0, len(all))
	for _, f := range all {
		overlaps := false
		for _, k := range kept {
			if f.Start < k.End && k.Start < f.End {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, f)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept
}

// Redact replaces each finding with "[REDACTED:<pattern id>]" and reports
// how many values were masked.
func (e *PolicyEngine) Redact(text string) (string, int) {
	findings := e.Scan(text)
	if len(findings) == 0 {
		return text, 0
	}
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, f := range findings {
		b.WriteString(text[last:f.Start])
		b.WriteString("[REDACTED:" + f.PatternId + "]")
		last = f.End
	}
	b.WriteString(text[last:])
	return b.String(), len(findings)
}

// matches returns the masked spans of p in text. With a capture group
// only the group is masked.
func (e *PolicyEngine) matches(p *Pattern, text string) [][2]int {
	var out [][2]int
	for _, idx := range p.compiled.FindAllStringSubmatchIndex(text, -1) {
		start, end := idx[0], idx[1]
		if len(idx) >= 4 && idx[2] >= 0 {
			start, end = idx[2], idx[3]
		}
		if p.Checksum == ChecksumLuhn && !luhnValid(text[start:end]) {
			continue
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

// luhnValid runs the Luhn check over the digits of s.
func luhnValid(s string) bool {
	sum, n := 0, 0
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c < '0' || c > '9' {
			continue
		}
		d := int(c - '0')
		if n%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		n++
	}
	return n > 0 && sum%10 == 0
}
