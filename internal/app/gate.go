package app

import (
	"strings"

	"quicktrivia/internal/domain"
)

// Routes of the game.
const (
	RouteHome  = "/"
	RouteSetup = "/setup"
	RouteRoom  = "/room/"
	RoutePlay  = "/play"
)

// Gate reports whether route may be shown for state. When it may not, the
// returned redirect is the mode select screen.
func Gate(route string, state domain.SessionState) (string, bool) {
	switch {
	case route == RouteHome:
		return "", true
	case route == RouteSetup:
		if state.Mode != domain.ModeSolo {
			return RouteHome, false
		}
		switch state.Phase {
		case domain.PhaseModeSelected, domain.PhaseConfiguring, domain.PhaseInProgress:
			return "", true
		}
		return RouteHome, false
	case strings.HasPrefix(route, RouteRoom):
		// joining decides whether the room exists
		return "", true
	case route == RoutePlay || strings.HasPrefix(route, RoutePlay+"/"):
		if state.Phase != domain.PhaseInProgress && state.Phase != domain.PhaseSummary {
			return RouteHome, false
		}
		if state.Total == 0 {
			return RouteHome, false
		}
		if roomID := strings.TrimPrefix(route, RoutePlay+"/"); roomID != route && roomID != state.Settings.RoomID {
			return RouteHome, false
		}
		return "", true
	}
	return RouteHome, false
}
