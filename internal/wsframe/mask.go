// Copyright 2026 The unimrcp-ws-bridge Authors.
// Licensed under the Apache License, Version 2.0.

package wsframe

import "crypto/rand"

// GenerateMask produces a fresh 4-byte masking key for one outbound frame.
// Spec §4.1 only requires the mask be unpredictable enough to defeat
// cache-poisoning intermediaries, not cryptographically secure — crypto/rand
// exceeds that bar at negligible cost, so there's no reason to reach for a
// weaker source.
func GenerateMask() ([4]byte, error) {
	var mask [4]byte
	if _, err := rand.Read(mask[:]); err != nil {
		return mask, err
	}
	return mask, nil
}
