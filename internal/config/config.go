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

// Package config loads the daemon's YAML configuration file: read the
// whole file, unmarshal with gopkg.in/yaml.v3, then apply defaults to
// anything left at its zero value.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"pitboss/internal/domain"
)

// DeviceConfig is one configured grill entry.
type DeviceConfig struct {
	ID                 string `yaml:"id"`
	Name               string `yaml:"name"`
	IPAddress          string `yaml:"ip_address"`
	Unit               string `yaml:"unit"` // "F" or "C"
	RefreshIntervalSec int    `yaml:"refresh_interval_seconds"`
	AutoRediscovery    bool   `yaml:"auto_rediscovery"`
	ScanContinue       *bool  `yaml:"scan_continue"`
}

// DiscoveryConfig holds subnet-scan parameters from the config file.
// The scanner does not read them; it uses the domain package's scan
// range and concurrency constants.
type DiscoveryConfig struct {
	ScanStartIP              int `yaml:"scan_start_ip"`
	ScanEndIP                int `yaml:"scan_end_ip"`
	MaxConcurrentConnections int `yaml:"max_concurrent_connections"`
}

// WebUIConfig controls the diagnostics dashboard listener.
type WebUIConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	Enabled  bool   `yaml:"enabled"`
}

// Config is the full daemon configuration, loaded from one YAML file.
type Config struct {
	LogPath             string          `yaml:"log_path"`
	AuthCacheTimeoutSec int             `yaml:"auth_cache_timeout_seconds"`
	DefaultRefreshSec   int             `yaml:"default_refresh_interval_seconds"`
	Discovery           DiscoveryConfig `yaml:"discovery"`
	WebUI               WebUIConfig     `yaml:"webui"`
	Devices             []DeviceConfig  `yaml:"devices"`
}

// Load reads and parses path, applying defaults for anything left at
// its zero value. It reports errors rather than calling log.Fatalf:
// the daemon entrypoint decides how to report a startup failure.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	c.applyDefaults()

	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.AuthCacheTimeoutSec == 0 {
		c.AuthCacheTimeoutSec = 4
	}
	if c.DefaultRefreshSec == 0 {
		c.DefaultRefreshSec = int(domain.DefaultRefreshInterval / time.Second)
	}
	if c.Discovery.ScanStartIP == 0 {
		c.Discovery.ScanStartIP = domain.DefaultScanStartIP
	}
	if c.Discovery.ScanEndIP == 0 {
		c.Discovery.ScanEndIP = domain.DefaultScanEndIP
	}
	if c.Discovery.MaxConcurrentConnections == 0 {
		c.Discovery.MaxConcurrentConnections = domain.MaxConcurrentConnections
	}
	if c.LogPath == "" {
		c.LogPath = "pitbossd.log"
	}
	if c.WebUI.HTTPAddr == "" {
		c.WebUI.HTTPAddr = ":8642"
	}
	for i := range c.Devices {
		d := &c.Devices[i]
		if d.RefreshIntervalSec == 0 {
			d.RefreshIntervalSec = c.DefaultRefreshSec
		}
		if d.Unit == "" {
			d.Unit = "F"
		}
		if d.ScanContinue == nil {
			t := true
			d.ScanContinue = &t
		}
	}
}

func (c *Config) validate() error {
	seen := make(map[string]bool, len(c.Devices))
	for _, d := range c.Devices {
		if d.ID == "" {
			return fmt.Errorf("config: device entry missing id")
		}
		if seen[d.ID] {
			return fmt.Errorf("config: duplicate device id %q", d.ID)
		}
		seen[d.ID] = true
		if d.IPAddress == "" {
			return fmt.Errorf("config: device %q missing ip_address", d.ID)
		}
		if d.Unit != "F" && d.Unit != "C" {
			return fmt.Errorf("config: device %q has invalid unit %q", d.ID, d.Unit)
		}
	}
	return nil
}

// TempUnit returns the device's configured temperature unit as a
// domain.Unit.
func (d DeviceConfig) TempUnit() domain.Unit {
	if d.Unit == "C" {
		return domain.Celsius
	}
	return domain.Fahrenheit
}

// RefreshInterval returns the device's configured poll interval.
func (d DeviceConfig) RefreshInterval() time.Duration {
	return time.Duration(d.RefreshIntervalSec) * time.Second
}

// ScanContinueOrDefault returns the device's scan_continue preference,
// defaulting to true when unset.
func (d DeviceConfig) ScanContinueOrDefault() bool {
	if d.ScanContinue == nil {
		return true
	}
	return *d.ScanContinue
}
