// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package models

import (
	"fmt"
	"strings"
)

// Kind identifies one of the independently synchronized entity collections.
type Kind string

const (
	KindOfficer  Kind = "OFFICER"
	KindIncident Kind = "INCIDENT"
	KindVehicle  Kind = "VEHICLE"
	KindRoute    Kind = "ROUTE"
)

// AllKinds lists every kind in display order.
var AllKinds = []Kind{KindOfficer, KindIncident, KindVehicle, KindRoute}

// kindAliases maps URL slugs, topic suffixes and loose spellings to a Kind.
var kindAliases = map[string]Kind{
	"officer":         KindOfficer,
	"officers":        KindOfficer,
	"incident":        KindIncident,
	"incidents":       KindIncident,
	"alert":           KindIncident,
	"alerts":          KindIncident,
	"vehicle":         KindVehicle,
	"vehicles":        KindVehicle,
	"patrol-vehicle":  KindVehicle,
	"patrol-vehicles": KindVehicle,
	"patrolvehicle":   KindVehicle,
	"route":           KindRoute,
	"routes":          KindRoute,
	"patrol-route":    KindRoute,
	"patrol-routes":   KindRoute,
	"patrolroute":     KindRoute,
}

// ParseKind resolves a kind name or alias, case-insensitively.
func ParseKind(s string) (Kind, error) {
	if k, ok := kindAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Valid reports whether k is one of the four known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindOfficer, KindIncident, KindVehicle, KindRoute:
		return true
	}
	return false
}

// Slug returns the plural lowercase form used in URLs and metric labels.
func (k Kind) Slug() string {
	switch k {
	case KindOfficer:
		return "officers"
	case KindIncident:
		return "incidents"
	case KindVehicle:
		return "vehicles"
	case KindRoute:
		return "routes"
	}
	return strings.ToLower(string(k))
}

func (k Kind) String() string { return string(k) }

// Streamed reports whether the kind's list view surfaces the most recently
// updated record first. Incidents arrive primarily by push; the other kinds
// are polled and keep insertion order.
func (k Kind) Streamed() bool {
	return k == KindIncident
}

// Status is an entity status. The valid set depends on the Kind.
type Status string

// StatusAll disables status filtering.
const StatusAll Status = "ALL"

// Officer statuses.
const (
	StatusOnDuty      Status = "ON_DUTY"
	StatusOffDuty     Status = "OFF_DUTY"
	StatusOnBreak     Status = "ON_BREAK"
	StatusInEmergency Status = "IN_EMERGENCY"
)

// Incident statuses.
const (
	StatusReported   Status = "REPORTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusResolved   Status = "RESOLVED"
	StatusClosed     Status = "CLOSED"
)

// Vehicle statuses.
const (
	StatusActive       Status = "ACTIVE"
	StatusAssigned     Status = "ASSIGNED"
	StatusMaintenance  Status = "MAINTENANCE"
	StatusOutOfService Status = "OUT_OF_SERVICE"
)

var statusesByKind = map[Kind][]Status{
	KindOfficer:  {StatusOnDuty, StatusOffDuty, StatusOnBreak, StatusInEmergency},
	KindIncident: {StatusReported, StatusInProgress, StatusResolved, StatusClosed},
	KindVehicle:  {StatusActive, StatusAssigned, StatusMaintenance, StatusOutOfService},
	KindRoute:    nil,
}

// Statuses returns the known statuses for a kind. Routes have none.
func Statuses(k Kind) []Status {
	return statusesByKind[k]
}

// KnownStatus reports whether s is a recognized status for k.
func KnownStatus(k Kind, s Status) bool {
	for _, known := range statusesByKind[k] {
		if known == s {
			return true
		}
	}
	return false
}

// NormalizeStatus canonicalizes a raw status string ("in progress",
// "In-Progress" and "IN_PROGRESS" are the same status).
func NormalizeStatus(raw string) Status {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return Status(s)
}
