// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package events declares the eventbus topics this module publishes
// on: one Topic var plus a plain update struct per subsystem.
package events

import (
	"pitboss/internal/domain"
	"pitboss/pkg/eventbus"
)

var (
	// TopicState carries a StateUpdate for one device every time its
	// derived state changes (including a no-op refresh, so subscribers
	// can use it as a heartbeat).
	TopicState eventbus.Topic = "grill.state"

	// TopicDiscovery carries one DiscoveryUpdate after each targeted
	// rediscovery attempt returns, including attempts the rate limit
	// skipped (Attempted false).
	TopicDiscovery eventbus.Topic = "grill.discovery"
)

// StateUpdate wraps a device's freshly derived state for publication.
type StateUpdate struct {
	DeviceID string
	State    domain.DerivedState
}

// DiscoveryUpdate reports the outcome of one rediscovery attempt.
type DiscoveryUpdate struct {
	DeviceID  string
	Attempted bool
	Found     bool
	IP        string
}
