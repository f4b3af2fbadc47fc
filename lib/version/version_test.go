// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"strings"
	"testing"
)

func TestShort(t *testing.T) {
	if got := Short(); got != Version {
		t.Errorf("Short() = %q, want %q", got, Version)
	}
}

func TestInfoIncludesCommit(t *testing.T) {
	info := Info()
	if !strings.Contains(info, Version) {
		t.Errorf("Info() = %q does not contain version %q", info, Version)
	}
	if !strings.Contains(info, GitCommit) {
		t.Errorf("Info() = %q does not contain commit %q", info, GitCommit)
	}
}

func TestFullIncludesPlatform(t *testing.T) {
	full := Full()
	if !strings.Contains(full, "Platform:") {
		t.Errorf("Full() = %q does not report the platform", full)
	}
	if !strings.Contains(full, Info()) {
		t.Errorf("Full() = %q does not start from Info()", full)
	}
}
