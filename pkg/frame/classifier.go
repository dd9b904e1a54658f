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

// Package frame picks the 802.11 management frames that reveal a nearby
// station and extracts what presence tracking needs from them.
package frame

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Subtype is the 802.11 management subtype number.
type Subtype uint8

const (
	SubtypeAssociationRequest   Subtype = 0
	SubtypeReassociationRequest Subtype = 2
	SubtypeProbeRequest         Subtype = 4
)

func (s Subtype) String() string {
	switch s {
	case SubtypeAssociationRequest:
		return "association_request"
	case SubtypeReassociationRequest:
		return "reassociation_request"
	case SubtypeProbeRequest:
		return "probe_request"
	default:
		return "other"
	}
}

// Frame is a classified sighting of a transmitter.
type Frame struct {
	Source  net.HardwareAddr
	RSSI    *int
	Subtype Subtype
	SSID    string
}

// Classify accepts association, reassociation and probe requests and returns
// the transmitter address, the RadioTap dBm signal when present and the
// requested SSID. Every other packet is rejected.
func Classify(packet gopacket.Packet) (Frame, bool) {
	if packet == nil {
		return Frame{}, false
	}

	dot11, ok := packet.Layer(layers.LayerTypeDot11).(*layers.Dot11)
	if !ok || dot11 == nil {
		return Frame{}, false
	}

	if dot11.Type.MainType() != layers.Dot11TypeMgmt {
		return Frame{}, false
	}

	subtype := Subtype(uint8(dot11.Type) >> 2)

	switch subtype {
	case SubtypeAssociationRequest, SubtypeReassociationRequest, SubtypeProbeRequest:
	default:
		return Frame{}, false
	}

	if len(dot11.Address2) == 0 {
		return Frame{}, false
	}

	return Frame{
		Source:  append(net.HardwareAddr(nil), dot11.Address2...),
		RSSI:    signalStrength(packet),
		Subtype: subtype,
		SSID:    requestedSSID(packet),
	}, true
}

func signalStrength(packet gopacket.Packet) *int {
	radiotap, ok := packet.Layer(layers.LayerTypeRadioTap).(*layers.RadioTap)
	if !ok || radiotap == nil || !radiotap.Present.DBMAntennaSignal() {
		return nil
	}

	rssi := int(radiotap.DBMAntennaSignal)

	return &rssi
}

// requestedSSID reads the SSID element from the request body. The probe
// request decoder keeps its elements in LayerContents instead of emitting
// Dot11InformationElement layers, so every subtype is walked from its body.
func requestedSSID(packet gopacket.Packet) string {
	var body []byte

	if probe, ok := packet.Layer(layers.LayerTypeDot11MgmtProbeReq).(*layers.Dot11MgmtProbeReq); ok {
		body = probe.LayerContents()
	} else if assoc, ok := packet.Layer(layers.LayerTypeDot11MgmtAssociationReq).(*layers.Dot11MgmtAssociationReq); ok {
		body = assoc.LayerPayload()
	} else if reassoc, ok := packet.Layer(layers.LayerTypeDot11MgmtReassociationReq).(*layers.Dot11MgmtReassociationReq); ok {
		body = reassoc.LayerPayload()
	}

	return findSSID(body)
}

// findSSID walks information elements until the SSID. The layer decoder
// refuses an element with fewer than four bytes after its header, which is
// legal for a trailing element, so those are sliced directly.
func findSSID(body []byte) string {
	for len(body) >= 2 {
		var ie layers.Dot11InformationElement

		if err := ie.DecodeFromBytes(body, gopacket.NilDecodeFeedback); err != nil {
			end := 2 + int(body[1])
			if end > len(body) {
				return ""
			}

			ie.ID = layers.Dot11InformationElementID(body[0])
			ie.Info = body[2:end]
			ie.Payload = body[end:]
		}

		if ie.ID == layers.Dot11InformationElementIDSSID {
			return string(ie.Info)
		}

		body = ie.Payload
	}

	return ""
}
