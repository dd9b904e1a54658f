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

// Package capture reads 802.11 frames from a monitor-mode interface or a pcap
// file and hands them, one at a time, to the presence tracker.
package capture

import (
	"errors"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"github.com/carverauto/presence/pkg/logger"
)

const defaultSnapLen int32 = 65536

var errNoSource = errors.New("either an interface or a pcap file is required")

// SourceConfig names where packets come from. PcapFile wins over Interface.
type SourceConfig struct {
	Interface string
	PcapFile  string
	SnapLen   int32
}

// Source wraps a pcap handle and the packet source decoding from it.
type Source struct {
	handle  *pcap.Handle
	packets *gopacket.PacketSource
}

// Open starts a live promiscuous capture or opens a recorded capture for replay.
func Open(cfg SourceConfig, log logger.Logger) (*Source, error) {
	var (
		handle *pcap.Handle
		err    error
	)

	switch {
	case cfg.PcapFile != "":
		handle, err = pcap.OpenOffline(cfg.PcapFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open pcap file %s: %w", cfg.PcapFile, err)
		}

		log.Info().Str("file", cfg.PcapFile).Msg("Replaying capture file")
	case cfg.Interface != "":
		snaplen := cfg.SnapLen
		if snaplen <= 0 {
			snaplen = defaultSnapLen
		}

		handle, err = pcap.OpenLive(cfg.Interface, snaplen, true, pcap.BlockForever)
		if err != nil {
			return nil, fmt.Errorf("failed to open interface %s: %w", cfg.Interface, err)
		}

		log.Info().Str("interface", cfg.Interface).Int32("snaplen", snaplen).Msg("Capturing on interface")
	default:
		return nil, errNoSource
	}

	log.Debug().Str("link_type", handle.LinkType().String()).Msg("Capture handle ready")

	return &Source{
		handle:  handle,
		packets: gopacket.NewPacketSource(handle, handle.LinkType()),
	}, nil
}

// Packets returns the decoded packet stream. The channel closes at end of file
// or when the handle is closed.
func (s *Source) Packets() <-chan gopacket.Packet {
	return s.packets.Packets()
}

// Close releases the pcap handle.
func (s *Source) Close() {
	s.handle.Close()
}
