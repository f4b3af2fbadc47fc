// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package licensecheck validates dependency license reports against
// an allow-list. Reports are the JSON arrays that dependency-license
// exporters emit; the allow-list is the semicolon-separated license
// names CI workflows carry in an environment variable.
package licensecheck

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Entry is one dependency in a license report.
type Entry struct {
	// Name is the package or module name.
	Name string `json:"name"`

	// Version is the dependency version as reported by the exporter.
	Version string `json:"version,omitempty"`

	// License is the detected license identifier (e.g., "MIT",
	// "Apache-2.0"). Empty when the exporter could not detect one.
	License string `json:"license"`
}

// Report is a dependency license report: the full set of third-party
// dependencies with their detected licenses.
type Report []Entry

// Violation is a dependency whose license is not on the allow-list.
type Violation struct {
	// Entry is the offending dependency.
	Entry Entry

	// Reason explains why the entry violates the allow-list.
	Reason string
}

func (v Violation) String() string {
	name := v.Entry.Name
	if v.Entry.Version != "" {
		name += "@" + v.Entry.Version
	}
	return fmt.Sprintf("%s: %s", name, v.Reason)
}

// ParseAllowList splits a semicolon-separated allow-list string
// ("MIT;Apache-2.0;BSD-3-Clause") into license names. Entries are
// trimmed of surrounding whitespace; empty entries are dropped. Case
// is preserved, and matching in Check is exact.
func ParseAllowList(value string) []string {
	var allowed []string
	for _, entry := range strings.Split(value, ";") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			allowed = append(allowed, entry)
		}
	}
	return allowed
}

// ParseReport decodes a license report from its JSON encoding.
func ParseReport(data []byte) (Report, error) {
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("parsing license report: %w", err)
	}
	return report, nil
}

// LoadReport reads and parses a license report file.
func LoadReport(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	report, err := ParseReport(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return report, nil
}

// Check compares every report entry against the allow-list and
// returns the violations, in report order. An empty or undetected
// license is a violation: a dependency whose license the exporter
// could not identify needs human review, not a silent pass.
func Check(report Report, allowed []string) []Violation {
	allowedSet := make(map[string]bool, len(allowed))
	for _, license := range allowed {
		allowedSet[license] = true
	}

	var violations []Violation
	for _, entry := range report {
		switch {
		case entry.License == "":
			violations = append(violations, Violation{
				Entry:  entry,
				Reason: "no license detected",
			})
		case !allowedSet[entry.License]:
			violations = append(violations, Violation{
				Entry:  entry,
				Reason: fmt.Sprintf("license %q is not on the allow-list", entry.License),
			})
		}
	}
	return violations
}
