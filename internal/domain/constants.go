package domain

import "time"

// Temperature bounds and approved setpoints.
const (
	MinTempF = 180
	MaxTempF = 500
	MinTempC = 82
	MaxTempC = 260
)

var (
	ApprovedSetpointsF = []int{180, 200, 225, 250, 275, 300, 325, 350, 375, 400, 425, 450, 475, 500}
	ApprovedSetpointsC = []int{82, 93, 107, 121, 135, 148, 162, 176, 190, 204, 218, 232, 260}
)

// MinimumFirmwareVersion is the default floor for is_firmware_valid.
const MinimumFirmwareVersion = "0.5.7"

// Reducer thresholds and power model.
const (
	TempTolerancePercent = 0.95

	StartupGracePeriod = 60 * time.Second

	BaseControllerW    = 5.0
	AugerW             = 120.0
	HotElementW        = 300.0
	FanHighCoolingW    = 25.0
	FanLowOperationW   = 10.0
	LightW             = 10.0
	PrimeW             = 120.0
)

// Panic manager.
const PanicTimeout = 300 * time.Second

// Scheduler interval model.
const (
	DefaultRefreshInterval = 30 * time.Second

	PanicRecoveryMultiplier = 0.3
	PreheatingMultiplier    = 0.5
	ActiveMultiplier        = 1.0
	InactiveMultiplier      = 6.0

	MinHealthCheckInterval  = 15 * time.Second
	MaxHealthCheckInterval  = 300 * time.Second
	MaxHealthIntervalHours  = time.Hour
)

// Discovery/rediscovery.
const (
	DefaultScanStartIP        = 2
	DefaultScanEndIP          = 253
	MaxConcurrentConnections  = 10
	PeriodicRediscoveryInterval = 24 * time.Hour
	RediscoveryTimeout        = 30 * time.Second
	RediscoveryStaleFlagAfter = 300 * time.Second
)

// Controller/command timing.
const (
	CommandRetryCount = 1
	CommandRetryDelay = 1 * time.Second
	RefreshDelay      = 3 * time.Second
)
