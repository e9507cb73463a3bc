// Package grillctl owns one grill's end-to-end poll loop: scheduler
// ticks drive an RPC fetch, the decoder turns it into a domain.Status,
// panicmgr and reduce fold it into the device's DerivedState, and the
// result is persisted to the field store and published on the
// eventbus. Polls run on the scheduler's timer callbacks, commands on
// the caller's goroutine and rediscovery scans on a goroutine of their
// own; a mutex guards the shared state, and a derived view is
// published after every poll.
package grillctl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pitboss/internal/discovery"
	"pitboss/internal/domain"
	"pitboss/internal/events"
	"pitboss/internal/fields"
	"pitboss/internal/panicmgr"
	"pitboss/internal/reduce"
	"pitboss/internal/rpc"
	"pitboss/internal/scheduler"
	"pitboss/internal/status"
	"pitboss/pkg/eventbus"
	"pitboss/pkg/logger"
)

// Command identifies one of the grill's pure command encoders.
type Command struct {
	Kind  CommandKind
	Value int  // target temperature, when Kind == CmdSetTemperature
	On    bool // on/off, for every other kind
}

type CommandKind int

const (
	CmdSetTemperature CommandKind = iota
	CmdSetLight
	CmdSetPrime
	CmdSetPower
	CmdSetUnit
)

// Controller owns one device's polling loop, session memory, and
// command dispatch.
type Controller struct {
	deviceID string
	rpc      *rpc.Client
	store    fields.Store
	bus      *eventbus.Bus
	log      *logger.Logger

	mu     sync.Mutex
	prefs  domain.Preferences
	ip     string
	mem    domain.SessionMemory
	state  domain.DerivedState
	sched  *scheduler.Scheduler
	scan   *discovery.Scanner
	scanSt discovery.State
}

// New returns a Controller for deviceID. prober backs the Sys.GetInfo
// rediscovery probe; production callers pass rpcClient.GetSysInfo.
func New(deviceID string, rpcClient *rpc.Client, store fields.Store, bus *eventbus.Bus, prober discovery.Prober) *Controller {
	c := &Controller{
		deviceID: deviceID,
		rpc:      rpcClient,
		store:    store,
		bus:      bus,
		log:      logger.New("GrillCtl:" + deviceID),
		scan:     discovery.New(deviceID, prober),
	}
	c.sched = scheduler.New(deviceID, store, c.poll)
	return c
}

// Init starts the polling loop for prefs. It must be called once,
// before any SendCommand call.
func (c *Controller) Init(ctx context.Context, prefs domain.Preferences) {
	c.mu.Lock()
	c.prefs = prefs
	c.ip = prefs.IPAddress
	c.state.TempRangeUnit = prefs.Unit
	c.sched.SetBaseInterval(time.Duration(prefs.RefreshIntervalSeconds) * time.Second)
	c.mu.Unlock()

	c.sched.Init(ctx)
}

// Remove stops the polling loop and clears all persisted state for
// this device.
func (c *Controller) Remove() {
	c.sched.Cancel()
	c.store.Clear(c.deviceID)
}

// State returns the most recently derived state.
func (c *Controller) State() domain.DerivedState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// poll is the Scheduler.Handler: one fetch-decode-fold cycle.
func (c *Controller) poll(ctx context.Context) scheduler.PollResult {
	c.mu.Lock()
	ip := c.ip
	prefs := c.prefs
	mem := c.mem
	prev := c.state
	c.mu.Unlock()

	input, connectivity, grillOnHint := c.fetch(ctx, ip, mem.LastKnownGrillOn)

	now := time.Now()
	panicmgr.Evaluate(&mem, connectivity, grillOnHint, now)
	next := reduce.Reduce(prev, &mem, prefs, input, now)

	c.mu.Lock()
	c.mem = mem
	c.state = next
	c.mu.Unlock()

	c.persistMem(&mem)
	c.maybeRediscover(ctx, &mem, connectivity)

	if c.bus != nil {
		c.bus.Publish(events.TopicState, events.StateUpdate{DeviceID: c.deviceID, State: next})
	}

	return scheduler.PollResult{
		Panic:      next.Panic,
		GrillOn:    next.LastStatus != nil && next.LastStatus.GrillOn(),
		Preheating: next.Operation == domain.OpPreheating,
	}
}

// fetch performs one RPC round trip and classifies its outcome into a
// reduce.Input plus the connectivity/grillOn signals panicmgr needs.
func (c *Controller) fetch(ctx context.Context, ip string, lastKnownGrillOn bool) (reduce.Input, domain.Connectivity, bool) {
	if ip == "" {
		return reduce.Input{Kind: reduce.Offline}, domain.Offline, false
	}

	resp, err := c.rpc.GetState(ctx, ip)
	if err != nil {
		if errors.Is(err, rpc.ErrAuthenticationFailed) {
			return reduce.Input{Kind: reduce.AuthFail, GrillOn: lastKnownGrillOn}, domain.AuthFailing, lastKnownGrillOn
		}
		c.log.Error("poll %s: %v", ip, err)
		return reduce.Input{Kind: reduce.Offline}, domain.Offline, lastKnownGrillOn
	}

	st := status.ParseStatus(resp.SC11, resp.SC12)
	return reduce.Input{Kind: reduce.Fresh, Status: st}, domain.Online, st.GrillOn()
}

func (c *Controller) persistMem(mem *domain.SessionMemory) {
	c.store.Set(c.deviceID, fields.KeyPanicState, mem.PanicState, fields.Options{Persist: true})
	c.store.Set(c.deviceID, fields.KeyConsecutiveAuthFailures, mem.ConsecutiveAuthFailures, fields.Options{Persist: true})
	if mem.HasLastActiveTime {
		c.store.Set(c.deviceID, fields.KeyLastActiveTime, mem.LastActiveTime, fields.Options{Persist: true})
	}
	if mem.HasLastTargetTemp {
		c.store.Set(c.deviceID, fields.KeyLastTargetTemp, mem.LastTargetTemp, fields.Options{Persist: true})
	}
	c.store.Set(c.deviceID, fields.KeySessionReachedTemp, mem.SessionReachedTemp, fields.Options{Persist: true})
	c.store.Set(c.deviceID, fields.KeySessionEverReachedTemp, mem.SessionEverReachedTemp, fields.Options{Persist: true})
}

// maybeRediscover kicks off a background targeted rescan after any
// poll that was not Online, when auto_rediscovery is set and a first
// offline time is recorded. The /24 scanned is that of the stored
// ip_address, or of the current address when none is stored. It does
// not wait for panicmgr's grace window and does not read scan_continue;
// the scanner's own rate limits decide whether a scan runs.
func (c *Controller) maybeRediscover(ctx context.Context, mem *domain.SessionMemory, connectivity domain.Connectivity) {
	c.mu.Lock()
	prefs := c.prefs
	c.mu.Unlock()

	if !prefs.AutoRediscovery || connectivity == domain.Online {
		return
	}
	if !mem.HasFirstOfflineTime {
		return
	}

	hubIP, ok := c.store.Get(c.deviceID, fields.KeyIPAddress)
	if !ok {
		c.mu.Lock()
		hubIP = c.ip
		c.mu.Unlock()
	}
	if fmt.Sprint(hubIP) == "" {
		return
	}
	knownID, _ := c.store.Get(c.deviceID, fields.KeyDeviceNetworkID)
	knownIDStr, _ := knownID.(string)

	go func() {
		res := c.scan.Scan(ctx, fmt.Sprint(hubIP), knownIDStr, &c.scanSt, c.refreshInterval(), false)
		if res.Attempted && res.Found {
			c.mu.Lock()
			c.ip = res.IP
			c.mu.Unlock()
			c.store.Set(c.deviceID, fields.KeyIPAddress, res.IP, fields.Options{Persist: true})
			c.log.Info("rediscovered %s at %s", c.deviceID, res.IP)
		}
		if c.bus != nil {
			c.bus.Publish(events.TopicDiscovery, events.DiscoveryUpdate{
				DeviceID:  c.deviceID,
				Attempted: res.Attempted,
				Found:     res.Found,
				IP:        res.IP,
			})
		}
	}()
}

func (c *Controller) refreshInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prefs.RefreshIntervalSeconds <= 0 {
		return domain.DefaultRefreshInterval
	}
	return time.Duration(c.prefs.RefreshIntervalSeconds) * time.Second
}

// SendCommand encodes and sends cmd, retrying once on failure per
// commandRetryCount/commandRetryDelay. It does not wait for the
// next poll to confirm the change took effect.
func (c *Controller) SendCommand(ctx context.Context, cmd Command) domain.CommandResult {
	c.mu.Lock()
	ip := c.ip
	unit := c.prefs.Unit
	c.mu.Unlock()

	if ip == "" {
		return domain.CommandResult{Err: fmt.Errorf("grillctl: %s has no known address", c.deviceID)}
	}

	hex, err := encode(cmd, unit)
	if err != nil {
		return domain.CommandResult{Err: err}
	}

	var lastErr error
	for attempt := 0; attempt <= commandRetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return domain.CommandResult{Hex: hex, Err: ctx.Err()}
			case <-time.After(commandRetryDelay):
			}
		}
		if err := c.rpc.SendMCUCommand(ctx, ip, hex); err != nil {
			lastErr = err
			c.log.Error("send command %s to %s (attempt %d): %v", hex, ip, attempt+1, err)
			continue
		}
		return domain.CommandResult{Success: true, Hex: hex}
	}
	return domain.CommandResult{Hex: hex, Err: lastErr}
}

const (
	commandRetryCount = 1
	commandRetryDelay = time.Second
)

func encode(cmd Command, unit domain.Unit) (string, error) {
	switch cmd.Kind {
	case CmdSetTemperature:
		return rpc.EncodeSetTemperature(cmd.Value, unit)
	case CmdSetLight:
		return rpc.SetLight(cmd.On), nil
	case CmdSetPrime:
		return rpc.SetPrime(cmd.On), nil
	case CmdSetPower:
		return rpc.SetPower(cmd.On), nil
	case CmdSetUnit:
		return rpc.SetUnit(cmd.On), nil
	default:
		return "", fmt.Errorf("grillctl: unknown command kind %d", cmd.Kind)
	}
}

// OnPrefsChanged reapplies a preference update: an IP address change
// takes effect immediately, an interval change is picked up on the
// scheduler's next arm, and a rediscovery toggle takes effect on the
// next poll's maybeRediscover check. An IP change starts no
// rediscovery scan; the new address is used from the next poll on.
func (c *Controller) OnPrefsChanged(ctx context.Context, newPrefs domain.Preferences) {
	c.mu.Lock()
	old := c.prefs
	c.prefs = newPrefs
	if newPrefs.IPAddress != "" && newPrefs.IPAddress != old.IPAddress {
		c.ip = newPrefs.IPAddress
	}
	c.state.TempRangeUnit = newPrefs.Unit
	c.mu.Unlock()

	if newPrefs.RefreshIntervalSeconds != old.RefreshIntervalSeconds {
		c.sched.SetBaseInterval(time.Duration(newPrefs.RefreshIntervalSeconds) * time.Second)
	}
	c.store.Set(c.deviceID, fields.KeyLastProcessedPrefs, newPrefs, fields.Options{Persist: true})
}
