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

package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// SightingMessage tags every row of the sighting log.
type SightingMessage string

const (
	MessageAlive SightingMessage = "Alive"
	MessageDead  SightingMessage = "Dead"
	MessageDummy SightingMessage = "Dummy"

	// legacyDummyMessage is what older sighting databases hold for the sentinel row.
	legacyDummyMessage = "Dummy Data"
)

// HumanTimeLayout matches the ctime(3) rendering used for the human_time column.
const HumanTimeLayout = time.ANSIC

var ErrUnknownSightingMessage = errors.New("unknown sighting message")

// ParseSightingMessage maps a stored message column back onto a SightingMessage.
func ParseSightingMessage(raw string) (SightingMessage, error) {
	switch strings.TrimSpace(raw) {
	case string(MessageAlive):
		return MessageAlive, nil
	case string(MessageDead):
		return MessageDead, nil
	case string(MessageDummy), legacyDummyMessage:
		return MessageDummy, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSightingMessage, raw)
	}
}

// SightingEvent is an immutable record of one observation or state transition.
//
// MAC is nil only for the bootstrap sentinel. Target is a reserved correlation
// field and is never populated by the tracker.
type SightingEvent struct {
	Target    *string
	MAC       net.HardwareAddr
	RSSI      *int
	Epoch     int64
	HumanTime string
	Message   SightingMessage
}

// NewSightingEvent builds a record stamped at epoch, rendering HumanTime in loc.
func NewSightingEvent(mac net.HardwareAddr, rssi *int, epoch int64, loc *time.Location, msg SightingMessage) SightingEvent {
	return SightingEvent{
		MAC:       cloneHardwareAddr(mac),
		RSSI:      cloneInt(rssi),
		Epoch:     epoch,
		HumanTime: FormatHumanTime(epoch, loc),
		Message:   msg,
	}
}

// FormatHumanTime renders a Unix epoch the way the human_time column stores it.
func FormatHumanTime(epoch int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}

	return time.Unix(epoch, 0).In(loc).Format(HumanTimeLayout)
}

// HasMAC reports whether the record names a hardware address.
func (e *SightingEvent) HasMAC() bool {
	return len(e.MAC) > 0
}

// MACString returns the colon separated address or an empty string for the sentinel.
func (e *SightingEvent) MACString() string {
	if !e.HasMAC() {
		return ""
	}

	return e.MAC.String()
}

// Time returns the epoch as a UTC time.Time.
func (e *SightingEvent) Time() time.Time {
	return time.Unix(e.Epoch, 0).UTC()
}

type sightingEventJSON struct {
	Target    *string         `json:"target"`
	MAC       *string         `json:"mac"`
	RSSI      *int            `json:"rssi"`
	Epoch     int64           `json:"epoch"`
	HumanTime string          `json:"human_time"`
	Message   SightingMessage `json:"message"`
}

// MarshalJSON emits the MAC as text rather than the base64 default for byte slices.
func (e SightingEvent) MarshalJSON() ([]byte, error) {
	out := sightingEventJSON{
		Target:    e.Target,
		RSSI:      e.RSSI,
		Epoch:     e.Epoch,
		HumanTime: e.HumanTime,
		Message:   e.Message,
	}

	if e.HasMAC() {
		mac := e.MAC.String()
		out.MAC = &mac
	}

	return json.Marshal(out)
}

// UnmarshalJSON accepts the shape produced by MarshalJSON.
func (e *SightingEvent) UnmarshalJSON(b []byte) error {
	var in sightingEventJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}

	var mac net.HardwareAddr

	if in.MAC != nil && *in.MAC != "" {
		parsed, err := net.ParseMAC(*in.MAC)
		if err != nil {
			return fmt.Errorf("invalid mac %q: %w", *in.MAC, err)
		}

		mac = parsed
	}

	msg, err := ParseSightingMessage(string(in.Message))
	if err != nil {
		return err
	}

	*e = SightingEvent{
		Target:    in.Target,
		MAC:       mac,
		RSSI:      in.RSSI,
		Epoch:     in.Epoch,
		HumanTime: in.HumanTime,
		Message:   msg,
	}

	return nil
}

func cloneHardwareAddr(mac net.HardwareAddr) net.HardwareAddr {
	if len(mac) == 0 {
		return nil
	}

	out := make(net.HardwareAddr, len(mac))
	copy(out, mac)

	return out
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}

	out := *v

	return &out
}
