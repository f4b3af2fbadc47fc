// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/conveyorci/conveyor/lib/schema"
)

// Matches reports whether the event starts a workflow with the given
// triggers. A nil trigger block never matches — workflows without an
// "on" section only run when invoked explicitly.
//
// Push events match when the branch satisfies any declared glob
// pattern (doublestar syntax); an empty branch list matches every
// branch. Pull request events match when the action is listed in
// Types; an empty list matches every action.
func Matches(triggers *schema.Triggers, evt *Event) (bool, error) {
	if triggers == nil {
		return false, nil
	}

	switch evt.Kind {
	case KindPush:
		if triggers.Push == nil {
			return false, nil
		}
		return branchMatches(triggers.Push.Branches, evt.Push.Branch())

	case KindPullRequest:
		if triggers.PullRequest == nil {
			return false, nil
		}
		return actionMatches(triggers.PullRequest.Types, evt.PullRequest.Action), nil
	}

	return false, nil
}

// branchMatches checks a branch name against a list of doublestar
// globs. An empty pattern list matches everything.
func branchMatches(patterns []string, branch string) (bool, error) {
	if len(patterns) == 0 {
		return true, nil
	}
	for _, pattern := range patterns {
		matched, err := doublestar.Match(pattern, branch)
		if err != nil {
			return false, fmt.Errorf("branch pattern %q: %w", pattern, err)
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}

// actionMatches checks a pull request action against a type list. An
// empty list matches every action.
func actionMatches(types []string, action string) bool {
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if t == action {
			return true
		}
	}
	return false
}
