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
	"errors"
	"time"
)

var (
	errNATSURLRequired = errors.New("nats url is required")
)

// NATSConfig configures NATS connectivity
type NATSConfig struct {
	URL      string          `json:"url"`
	Domain   string          `json:"domain,omitempty"`
	Security *SecurityConfig `json:"security,omitempty"`
}

// Validate ensures the NATS configuration is valid
func (c *NATSConfig) Validate() error {
	if c.URL == "" {
		return errNATSURLRequired
	}

	return nil
}

const (
	DefaultPresenceStream  = "presence"
	PresenceSubjectPrefix  = "events.presence"
	PresenceAliveSubject   = PresenceSubjectPrefix + ".alive"
	PresenceDeadSubject    = PresenceSubjectPrefix + ".dead"
	PresenceEventSource    = "carverauto/presence"
	PresenceEventTypeAlive = "com.carverauto.presence.alive"
	PresenceEventTypeDead  = "com.carverauto.presence.dead"
)

// EventsConfig configures the event publishing system
type EventsConfig struct {
	Enabled    bool     `json:"enabled"`
	StreamName string   `json:"stream_name"`
	Subjects   []string `json:"subjects"`
}

// Validate ensures the events configuration is valid
func (c *EventsConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.StreamName == "" {
		c.StreamName = DefaultPresenceStream
	}

	if len(c.Subjects) == 0 {
		c.Subjects = []string{PresenceSubjectPrefix + ".*"}
	}

	return nil
}

// SecurityConfig holds the mTLS material for outbound connections.
type SecurityConfig struct {
	Mode       string    `json:"mode"`
	CertDir    string    `json:"cert_dir"`
	ServerName string    `json:"server_name,omitempty"`
	TLS        TLSConfig `json:"tls"`
}

// TLSConfig names certificate files, relative to a cert dir when not absolute.
type TLSConfig struct {
	CertFile string `json:"cert_file"`
	KeyFile  string `json:"key_file"`
	CAFile   string `json:"ca_file"`
}

// CloudEvent represents a CloudEvents v1.0 compliant event.
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	ID              string      `json:"id"`
	Source          string      `json:"source"`
	Type            string      `json:"type"`
	DataContentType string      `json:"datacontenttype"`
	Subject         string      `json:"subject,omitempty"`
	Time            *time.Time  `json:"time,omitempty"`
	Data            interface{} `json:"data,omitempty"`
}

// PresenceEventData is the payload published for Alive and Dead sightings.
type PresenceEventData struct {
	MAC       string          `json:"mac"`
	RSSI      *int            `json:"rssi,omitempty"`
	Epoch     int64           `json:"epoch"`
	HumanTime string          `json:"human_time"`
	State     SightingMessage `json:"state"`
	Timestamp time.Time       `json:"timestamp"`
}
