// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package event defines trigger event payloads and their translation
// into workflow variables. Events are the runner's input boundary: a
// JSON file describing a push or pull request, in the shape forge
// webhooks deliver. The structs here are minimal — they extract only
// the fields workflows need, not the full webhook surface.
package event

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Kind identifies the event type.
type Kind string

const (
	// KindPush is a branch push.
	KindPush Kind = "push"

	// KindPullRequest is a pull request lifecycle event.
	KindPullRequest Kind = "pull_request"
)

// User is a forge user reference.
type User struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
}

// Repository is a repository reference.
type Repository struct {
	FullName string `json:"full_name"` // "owner/repo"
	HTMLURL  string `json:"html_url"`
}

// Branch is a git branch reference on a pull request.
type Branch struct {
	Ref string `json:"ref"` // branch name
	SHA string `json:"sha"` // head commit SHA
}

// PushPayload is the payload of a push event.
type PushPayload struct {
	Ref        string     `json:"ref"`    // "refs/heads/main"
	Before     string     `json:"before"` // previous HEAD SHA
	After      string     `json:"after"`  // new HEAD SHA
	Repository Repository `json:"repository"`
	Sender     User       `json:"sender"`
	CompareURL string     `json:"compare"`
}

// Branch returns the branch name with the "refs/heads/" prefix
// stripped. Non-branch refs (tags) are returned unchanged.
func (p PushPayload) Branch() string {
	return strings.TrimPrefix(p.Ref, "refs/heads/")
}

// PullRequest is the pull request within a pull_request event.
type PullRequest struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	HTMLURL string `json:"html_url"`
	User    User   `json:"user"`
	Head    Branch `json:"head"`
	Base    Branch `json:"base"`
	Draft   bool   `json:"draft"`
	State   string `json:"state"` // "open" or "closed"
}

// PullRequestPayload is the payload of a pull_request event.
type PullRequestPayload struct {
	Action      string      `json:"action"` // opened, synchronize, reopened, closed, ...
	PullRequest PullRequest `json:"pull_request"`
	Repository  Repository  `json:"repository"`
	Sender      User        `json:"sender"`
}

// Event is a decoded trigger event. Exactly one of Push or
// PullRequest is set, matching Kind.
type Event struct {
	Kind        Kind                `json:"kind"`
	Push        *PushPayload        `json:"push,omitempty"`
	PullRequest *PullRequestPayload `json:"pull_request,omitempty"`

	// raw is the original JSON, preserved so workflows can access
	// the full payload via ${EVENT_PAYLOAD} (the original use case:
	// writing the pull request payload to a file for artifact
	// upload).
	raw json.RawMessage
}

// Parse decodes an event from its JSON encoding. The top-level "kind"
// field selects the payload type.
func Parse(data []byte) (*Event, error) {
	var decoded Event
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("parsing event: %w", err)
	}

	switch decoded.Kind {
	case KindPush:
		if decoded.Push == nil {
			return nil, fmt.Errorf("push event has no push payload")
		}
	case KindPullRequest:
		if decoded.PullRequest == nil {
			return nil, fmt.Errorf("pull_request event has no pull_request payload")
		}
	case "":
		return nil, fmt.Errorf("event has no kind")
	default:
		return nil, fmt.Errorf("unknown event kind %q", decoded.Kind)
	}

	decoded.raw = append(json.RawMessage(nil), data...)
	return &decoded, nil
}

// Load reads and parses an event JSON file.
func Load(path string) (*Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	parsed, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return parsed, nil
}

// Payload returns the event's original JSON encoding.
func (e *Event) Payload() []byte {
	return e.raw
}

// Variables flattens the event into EVENT_-prefixed workflow
// variables for ${NAME} expansion. The prefix keeps trigger context
// from colliding with explicit run parameters; explicit parameters
// take precedence during resolution.
//
// EVENT_PAYLOAD carries the full original JSON so a step can write it
// to a file (the conditional artifact-upload pattern).
func (e *Event) Variables() map[string]string {
	variables := map[string]string{
		"EVENT_KIND":    string(e.Kind),
		"EVENT_PAYLOAD": string(e.raw),
	}

	switch e.Kind {
	case KindPush:
		push := e.Push
		variables["EVENT_REF"] = push.Ref
		variables["EVENT_BRANCH"] = push.Branch()
		variables["EVENT_BEFORE"] = push.Before
		variables["EVENT_AFTER"] = push.After
		variables["EVENT_SHA"] = push.After
		variables["EVENT_REPOSITORY"] = push.Repository.FullName
		variables["EVENT_SENDER"] = push.Sender.Login

	case KindPullRequest:
		pr := e.PullRequest
		variables["EVENT_ACTION"] = pr.Action
		variables["EVENT_NUMBER"] = strconv.Itoa(pr.PullRequest.Number)
		variables["EVENT_TITLE"] = pr.PullRequest.Title
		variables["EVENT_BRANCH"] = pr.PullRequest.Head.Ref
		variables["EVENT_SHA"] = pr.PullRequest.Head.SHA
		variables["EVENT_BASE"] = pr.PullRequest.Base.Ref
		variables["EVENT_DRAFT"] = strconv.FormatBool(pr.PullRequest.Draft)
		variables["EVENT_REPOSITORY"] = pr.Repository.FullName
		variables["EVENT_SENDER"] = pr.Sender.Login
	}

	return variables
}
