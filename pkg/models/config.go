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

	"github.com/carverauto/presence/pkg/logger"
)

// Duration is a time.Duration that unmarshals from "60s" style strings or nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		// parse numeric as nanoseconds
		*d = Duration(time.Duration(value))
		return nil
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}

		*d = Duration(dur)

		return nil
	default:
		return errInvalidDuration
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

const (
	DefaultAlertThreshold = Duration(60 * time.Second)
	DefaultDebounce       = Duration(5 * time.Second)
	DefaultSnapLen        = 2048
	DefaultSightingTable  = "logging"
)

// DeadRSSIPolicy selects which signal strength a Dead record carries.
type DeadRSSIPolicy string

const (
	// DeadRSSIAbsent leaves rssi unset on Dead records.
	DeadRSSIAbsent DeadRSSIPolicy = "absent"
	// DeadRSSITrigger copies the rssi of the frame that triggered the Dead record.
	DeadRSSITrigger DeadRSSIPolicy = "trigger"
)

// Store drivers.
const (
	StoreDriverMemory = "memory"
	StoreDriverSQLite = "sqlite"
	StoreDriverCNPG   = "cnpg"
)

var (
	errInvalidDuration       = errors.New("invalid duration")
	errTargetsRequired       = errors.New("at least one target mac is required")
	errInvalidTarget         = errors.New("invalid target mac")
	errCaptureSourceRequired = errors.New("either interface or pcap_file is required")
	errNegativeThreshold     = errors.New("alert_threshold must be positive")
	errNegativeDebounce      = errors.New("debounce must not be negative")
	errUnknownDeadRSSIPolicy = errors.New("dead_rssi_policy must be 'absent' or 'trigger'")
	errUnknownStoreDriver    = errors.New("store.driver must be one of memory, sqlite, cnpg")
	errSQLitePathRequired    = errors.New("store.sqlite.path is required for the sqlite driver")
	errCNPGConfigRequired    = errors.New("store.cnpg is required for the cnpg driver")
	errInvalidTableName      = errors.New("store.table must be a plain identifier")
	errInvalidTimeZone       = errors.New("invalid time_zone")
	errNATSRequiredForEvents = errors.New("nats configuration is required when events are enabled")
)

// StoreConfig picks and configures the sighting log backend.
type StoreConfig struct {
	Driver string          `json:"driver"`
	Table  string          `json:"table,omitempty"`
	SQLite *SQLiteDatabase `json:"sqlite,omitempty"`
	CNPG   *CNPGDatabase   `json:"cnpg,omitempty"`
}

// MetricsConfig toggles OTLP metric and trace export. The exporter endpoint is
// shared with logging.otel.
type MetricsConfig struct {
	Enabled        bool     `json:"enabled"`
	Tracing        bool     `json:"tracing"`
	ExportInterval Duration `json:"export_interval,omitempty"`
}

// PresenceConfig is the on-disk configuration for the presence service.
type PresenceConfig struct {
	Interface      string         `json:"interface"`
	PcapFile       string         `json:"pcap_file,omitempty"`
	SnapLen        int32          `json:"snaplen,omitempty"`
	Targets        []string       `json:"targets"`
	AlertThreshold Duration       `json:"alert_threshold"`
	Debounce       Duration       `json:"debounce"`
	DeadRSSIPolicy DeadRSSIPolicy `json:"dead_rssi_policy,omitempty"`
	TimeZone       string         `json:"time_zone,omitempty"`
	Store          StoreConfig    `json:"store"`
	NATS           *NATSConfig    `json:"nats,omitempty"`
	Events         *EventsConfig  `json:"events,omitempty"`
	Logging        *logger.Config `json:"logging,omitempty"`
	Metrics        *MetricsConfig `json:"metrics,omitempty"`
}

// Validate fills defaults and rejects configurations the service cannot run with.
func (c *PresenceConfig) Validate() error {
	c.applyDefaults()

	if len(c.Targets) == 0 {
		return errTargetsRequired
	}

	for _, target := range c.Targets {
		if _, err := net.ParseMAC(strings.TrimSpace(target)); err != nil {
			return fmt.Errorf("%w %q: %w", errInvalidTarget, target, err)
		}
	}

	if c.Interface == "" && c.PcapFile == "" {
		return errCaptureSourceRequired
	}

	if c.AlertThreshold <= 0 {
		return errNegativeThreshold
	}

	if c.Debounce < 0 {
		return errNegativeDebounce
	}

	switch c.DeadRSSIPolicy {
	case DeadRSSIAbsent, DeadRSSITrigger:
	default:
		return errUnknownDeadRSSIPolicy
	}

	if c.TimeZone != "" {
		if _, err := time.LoadLocation(c.TimeZone); err != nil {
			return fmt.Errorf("%w %q: %w", errInvalidTimeZone, c.TimeZone, err)
		}
	}

	if err := c.Store.Validate(); err != nil {
		return err
	}

	if c.Events != nil && c.Events.Enabled {
		if c.NATS == nil {
			return errNATSRequiredForEvents
		}

		if err := c.NATS.Validate(); err != nil {
			return err
		}

		if err := c.Events.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// ValidateStore fills defaults and checks only the store section, for tools
// that read the sighting log without capturing.
func (c *PresenceConfig) ValidateStore() error {
	c.applyDefaults()

	return c.Store.Validate()
}

func (c *PresenceConfig) applyDefaults() {
	if c.AlertThreshold == 0 {
		c.AlertThreshold = DefaultAlertThreshold
	}

	if c.Debounce == 0 {
		c.Debounce = DefaultDebounce
	}

	if c.SnapLen <= 0 {
		c.SnapLen = DefaultSnapLen
	}

	if c.DeadRSSIPolicy == "" {
		c.DeadRSSIPolicy = DeadRSSIAbsent
	}

	if c.Store.Driver == "" {
		c.Store.Driver = StoreDriverSQLite
	}

	if c.Store.Table == "" {
		c.Store.Table = DefaultSightingTable
	}
}

// Location returns the zone used to render human_time. Validate must have passed.
func (c *PresenceConfig) Location() *time.Location {
	if c.TimeZone == "" {
		return time.Local
	}

	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.Local
	}

	return loc
}

// Validate checks the driver specific section is present.
func (s *StoreConfig) Validate() error {
	if !IsPlainIdentifier(s.Table) {
		return fmt.Errorf("%w: %q", errInvalidTableName, s.Table)
	}

	switch s.Driver {
	case StoreDriverMemory:
		return nil
	case StoreDriverSQLite:
		if s.SQLite == nil || s.SQLite.Path == "" {
			return errSQLitePathRequired
		}

		return nil
	case StoreDriverCNPG:
		if s.CNPG == nil {
			return errCNPGConfigRequired
		}

		return nil
	default:
		return fmt.Errorf("%w: %q", errUnknownStoreDriver, s.Driver)
	}
}

// IsPlainIdentifier reports whether name is safe to splice into SQL as a table name.
func IsPlainIdentifier(name string) bool {
	if name == "" {
		return false
	}

	for i, r := range name {
		switch {
		case r == '_':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}

	return true
}
