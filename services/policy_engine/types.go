// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package policy_engine

import (
	"fmt"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

type ConfidenceLevel string

const (
	Low    ConfidenceLevel = "low"
	Medium ConfidenceLevel = "medium"
	High   ConfidenceLevel = "high"
)

// Checksum names a digit check a match must pass to count.
type Checksum string

const (
	ChecksumNone Checksum = ""
	ChecksumLuhn Checksum = "luhn"
)

type PolicyFile struct {
	Classifications []Classification `yaml:"classifications"`
}

type Classification struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Priority    int       `yaml:"priority"`
	Patterns    []Pattern `yaml:"patterns"`
}

type Pattern struct {
	Id          string          `yaml:"id"`
	Description string          `yaml:"description"`
	Regex       string          `yaml:"regex"`
	Confidence  ConfidenceLevel `yaml:"confidence"`
	Checksum    Checksum        `yaml:"checksum,omitempty"`

	compiled *regexp.Regexp
}

func (c *ConfidenceLevel) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	incomingConfidence := ConfidenceLevel(s)
	switch incomingConfidence {
	case High, Medium, Low:
		*c = incomingConfidence
		return nil
	default:
		return fmt.Errorf("invalid value for Confidence: %q", incomingConfidence)
	}
}

func (c *Checksum) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	switch Checksum(s) {
	case ChecksumNone, ChecksumLuhn:
		*c = Checksum(s)
		return nil
	default:
		return fmt.Errorf("invalid value for Checksum: %q", s)
	}
}

// CompileRegexes compiles every pattern. A pattern may have at most one
// capture group.
func (p *PolicyFile) CompileRegexes() error {
	for i := range p.Classifications {
		for j := range p.Classifications[i].Patterns {
			pattern := &p.Classifications[i].Patterns[j]
			re, err := regexp.Compile(pattern.Regex)
			if err != nil {
				return fmt.Errorf("failed to compile the regex %s: %w", pattern.Regex, err)
			}
			if re.NumSubexp() > 1 {
				return fmt.Errorf("pattern %s has %d capture groups, at most 1 is allowed", pattern.Id, re.NumSubexp())
			}
			pattern.compiled = re
		}
	}
	return nil
}

// SortByPriority orders classifications from highest to lowest priority.
func (p *PolicyFile) SortByPriority() {
	sort.SliceStable(p.Classifications, func(i, j int) bool {
		return p.Classifications[i].Priority > p.Classifications[j].Priority
	})
}

// Finding is one sensitive value located in a text. Start and End are
// byte offsets of the masked span.
type Finding struct {
	Start              int             `json:"start"`
	End                int             `json:"end"`
	MatchedContent     string          `json:"-"`
	ClassificationName string          `json:"classification_name"`
	PatternId          string          `json:"pattern_id"`
	PatternDescription string          `json:"pattern_description"`
	Confidence         ConfidenceLevel `json:"confidence"`
}
