/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package presence

import (
	"fmt"
	"net"
	"sort"
	"strings"
)

// TargetSet is the immutable set of watched hardware addresses.
type TargetSet struct {
	addrs map[string]struct{}
}

// NewTargetSet parses every entry with net.ParseMAC. Entries that differ only
// in case or separator collapse to one member.
func NewTargetSet(targets []string) (TargetSet, error) {
	if len(targets) == 0 {
		return TargetSet{}, ErrNoTargets
	}

	addrs := make(map[string]struct{}, len(targets))

	for _, raw := range targets {
		mac, err := net.ParseMAC(strings.TrimSpace(raw))
		if err != nil {
			return TargetSet{}, fmt.Errorf("%w %q: %w", ErrInvalidTarget, raw, err)
		}

		addrs[mac.String()] = struct{}{}
	}

	return TargetSet{addrs: addrs}, nil
}

func (s TargetSet) Contains(mac net.HardwareAddr) bool {
	if len(mac) == 0 {
		return false
	}

	_, ok := s.addrs[mac.String()]

	return ok
}

func (s TargetSet) Len() int {
	return len(s.addrs)
}

// Strings returns the members in canonical lower-case form, sorted.
func (s TargetSet) Strings() []string {
	out := make([]string, 0, len(s.addrs))
	for addr := range s.addrs {
		out = append(out, addr)
	}

	sort.Strings(out)

	return out
}
