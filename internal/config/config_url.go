// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// urlRule is what one collaborator URL may look like.
type urlRule struct {
	schemes []string
	// originOnly rejects any path but "/" and any query, because request
	// paths are appended per entity kind.
	originOnly bool
	// noUserinfo rejects credentials in the URL; they belong in a token
	// setting so they never reach the logs.
	noUserinfo bool
	// list accepts a comma-separated server list.
	list bool
}

var (
	restURLRule = urlRule{schemes: []string{"http", "https"}, originOnly: true, noUserinfo: true}

	// natsURLRule follows nats.Connect, which takes a comma-separated
	// list of cluster members.
	natsURLRule = urlRule{schemes: []string{"nats", "tls", "ws", "wss"}, list: true}
)

// checkURL validates raw against rule. Errors start with the setting name.
func checkURL(setting, raw string, rule urlRule) error {
	parts := []string{raw}
	if rule.list {
		parts = strings.Split(raw, ",")
	}
	for _, part := range parts {
		if err := rule.check(strings.TrimSpace(part)); err != nil {
			return fmt.Errorf("%s %w", setting, err)
		}
	}
	return nil
}

func (r urlRule) check(raw string) error {
	if raw == "" {
		return fmt.Errorf("is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}
	if !slices.Contains(r.schemes, u.Scheme) {
		return fmt.Errorf("scheme must be one of %s, got %q", strings.Join(r.schemes, ", "), u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required in %q", raw)
	}
	if r.noUserinfo && u.User != nil {
		return fmt.Errorf("must not embed credentials")
	}
	if r.originOnly {
		if u.Path != "" && u.Path != "/" {
			return fmt.Errorf("should be base URL only, remove path: %s", u.Path)
		}
		if u.RawQuery != "" {
			return fmt.Errorf("should not contain query parameters, remove: ?%s", u.RawQuery)
		}
	}
	return nil
}
