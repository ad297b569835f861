// Copyright (c) 2026, the orphanage contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package backend

import "strings"

// transientTrackerFragments are tracker error messages that resolve on
// their own and must not flag a torrent as unhealthy.
var transientTrackerFragments = []string{
	"bad gateway",
	"overloaded",
	"maintenance",
	"stream truncated",
}

// IsTransientTrackerMessage reports whether a tracker message describes a
// temporary tracker-side condition rather than a persistent error.
func IsTransientTrackerMessage(msg string) bool {
	if msg == "" {
		return false
	}
	lower := strings.ToLower(msg)
	for _, fragment := range transientTrackerFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}
