// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package markers

import (
	"strings"

	"github.com/tomtom215/patrolmap/internal/models"
)

// Icon describes how a marker is drawn. Renderers map Name to an asset.
type Icon struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	Pulse bool   `json:"pulse,omitempty"`
}

// LineStyle describes how a route polyline is drawn.
type LineStyle struct {
	Color   string  `json:"color"`
	Weight  int     `json:"weight"`
	Opacity float64 `json:"opacity"`
	Dashed  bool    `json:"dashed,omitempty"`
}

// DefaultIcon is used for any (kind, status) pair without an entry.
var DefaultIcon = Icon{Name: "dot", Color: "#9e9e9e"}

var iconTable = map[models.Kind]map[models.Status]Icon{
	models.KindOfficer: {
		models.StatusOnDuty:      {Name: "officer", Color: "#1e88e5"},
		models.StatusOnBreak:     {Name: "officer", Color: "#fbc02d"},
		models.StatusOffDuty:     {Name: "officer", Color: "#757575"},
		models.StatusInEmergency: {Name: "officer-alert", Color: "#e53935", Pulse: true},
	},
	models.KindIncident: {
		models.StatusReported:   {Name: "warning", Color: "#e53935"},
		models.StatusInProgress: {Name: "warning", Color: "#fb8c00"},
		models.StatusResolved:   {Name: "warning", Color: "#43a047"},
		models.StatusClosed:     {Name: "warning", Color: "#757575"},
	},
	models.KindVehicle: {
		models.StatusActive:       {Name: "car", Color: "#1e88e5"},
		models.StatusAssigned:     {Name: "car", Color: "#8e24aa"},
		models.StatusMaintenance:  {Name: "car", Color: "#fbc02d"},
		models.StatusOutOfService: {Name: "car", Color: "#757575"},
	},
}

// vehicleTypeIcons overrides the vehicle icon name by the "type" field.
var vehicleTypeIcons = map[string]string{
	"car":        "car",
	"suv":        "car",
	"motorcycle": "motorcycle",
	"bike":       "bicycle",
	"bicycle":    "bicycle",
	"van":        "van",
	"truck":      "truck",
	"helicopter": "helicopter",
}

// severityColors overrides the incident color by the "severity" or
// "priority" field.
var severityColors = map[string]string{
	"critical": "#b71c1c",
	"high":     "#e53935",
	"medium":   "#fb8c00",
	"low":      "#fdd835",
}

// IconFor returns the icon of an entity. The lookup depends only on the
// kind, the status and the vehicle type or incident severity, so equal
// inputs always render the same icon.
func IconFor(e *models.Entity) Icon {
	icon, ok := iconTable[e.Kind][e.Status]
	if !ok {
		return DefaultIcon
	}

	switch e.Kind {
	case models.KindVehicle:
		if name, ok := vehicleTypeIcons[strings.ToLower(e.Text("type"))]; ok {
			icon.Name = name
		}
	case models.KindIncident:
		if e.Status == models.StatusReported || e.Status == models.StatusInProgress {
			sev := e.Text("severity")
			if sev == "" {
				sev = e.Text("priority")
			}
			if color, ok := severityColors[strings.ToLower(sev)]; ok {
				icon.Color = color
			}
		}
	}
	return icon
}

// defaultRouteStyle is used for routes without a recognized status.
var defaultRouteStyle = LineStyle{Color: "#3949ab", Weight: 4, Opacity: 0.8}

// RouteStyle returns the polyline style of a route.
func RouteStyle(e *models.Entity) LineStyle {
	style := defaultRouteStyle
	switch e.Status {
	case "COMPLETED", "INACTIVE":
		style.Color = "#757575"
		style.Dashed = true
	case "PLANNED", "SCHEDULED":
		style.Dashed = true
	}
	if color := e.Text("color"); strings.HasPrefix(color, "#") {
		style.Color = color
	}
	return style
}
