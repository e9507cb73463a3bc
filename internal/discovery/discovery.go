// Package discovery implements a bounded-concurrency subnet scan:
// probing a /24 for a grill that answers Sys.GetInfo with a matching
// device_network_id, with dual rate-limiting, a resumable scan
// position, a process-global per-device lock and a stale-flag reset
// for a stuck in-progress flag. One goroutine per
// candidate IP is spawned and joined with a sync.WaitGroup before
// returning, bounded by a semaphore channel for the concurrency limit.
package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pitboss/internal/domain"
	"pitboss/internal/rpc"
	"pitboss/pkg/logger"
)

// Prober is the per-IP probe call; production code backs this with
// rpc.Client.GetSysInfo, tests can fake it.
type Prober func(ctx context.Context, ip string) (rpc.SysInfo, error)

// Result is what a scan attempt reports back.
type Result struct {
	Attempted    bool // false when rate-limited ("not attempted")
	Found        bool
	IP           string
	ScanComplete bool // full range covered without finding anything
	Cooldown     time.Duration
}

// locks is the process-global in-memory rediscovery lock table, keyed
// by device ID, guarding against overlapping scans within one process.
var (
	locksMu sync.Mutex
	locks   = map[string]bool{}
)

func tryLock(deviceID string) bool {
	locksMu.Lock()
	defer locksMu.Unlock()
	if locks[deviceID] {
		return false
	}
	locks[deviceID] = true
	return true
}

func unlock(deviceID string) {
	locksMu.Lock()
	defer locksMu.Unlock()
	delete(locks, deviceID)
}

// State is the subset of SessionMemory-adjacent, discovery-specific
// bookkeeping a scan reads and mutates via the field store.
type State struct {
	LastRediscoveryAttempt       time.Time
	HasLastRediscoveryAttempt    bool
	LastSuccessfulRediscovery    time.Time
	HasLastSuccessfulRediscovery bool
	RediscoveryInProgress        bool
	RediscoveryStartTime         time.Time
	LastScanPosition             int
	HasLastScanPosition          bool
}

// Scanner runs targeted rediscovery scans for one device.
type Scanner struct {
	deviceID string
	prober   Prober
	log      *logger.Logger
	now      func() time.Time
}

// New returns a Scanner for deviceID using prober to test each IP.
func New(deviceID string, prober Prober) *Scanner {
	return &Scanner{
		deviceID: deviceID,
		prober:   prober,
		log:      logger.New("Discovery"),
		now:      time.Now,
	}
}

// resetStaleFlag clears a stuck rediscovery_in_progress flag once it
// has outlived RediscoveryStaleFlagAfter.
func resetStaleFlag(st *State, now time.Time) {
	if st.RediscoveryInProgress && now.Sub(st.RediscoveryStartTime) > domain.RediscoveryStaleFlagAfter {
		st.RediscoveryInProgress = false
	}
}

// Scan runs one targeted rediscovery attempt against hubIP's /24,
// looking for deviceNetworkID (or, if empty, the first responding Pit
// Boss). bypassRateLimit skips both rate-limit checks for explicit
// preference-change scans. refreshInterval is the device's current
// poll interval, used by the short-cooldown rule.
func (s *Scanner) Scan(ctx context.Context, hubIP, deviceNetworkID string, st *State, refreshInterval time.Duration, bypassRateLimit bool) Result {
	now := s.now()
	resetStaleFlag(st, now)

	if !bypassRateLimit {
		if cooldown, limited := s.rateLimited(st, refreshInterval, now); limited {
			return Result{Attempted: false, Cooldown: cooldown}
		}
	}

	if !tryLock(s.deviceID) {
		return Result{Attempted: false}
	}
	defer unlock(s.deviceID)

	st.RediscoveryInProgress = true
	st.RediscoveryStartTime = now
	st.LastRediscoveryAttempt = now
	st.HasLastRediscoveryAttempt = true
	defer func() { st.RediscoveryInProgress = false }()

	scanCtx, cancel := context.WithTimeout(ctx, domain.RediscoveryTimeout)
	defer cancel()

	start := domain.DefaultScanStartIP
	if st.HasLastScanPosition && st.LastScanPosition > start {
		start = st.LastScanPosition
	}

	found, foundIP, lastProbed, completed := s.scanRange(scanCtx, hubIP, deviceNetworkID, start)

	if found {
		st.HasLastScanPosition = false
		st.LastScanPosition = 0
		st.LastSuccessfulRediscovery = now
		st.HasLastSuccessfulRediscovery = true
		return Result{Attempted: true, Found: true, IP: foundIP}
	}

	if completed {
		st.HasLastScanPosition = false
		st.LastScanPosition = 0
		return Result{Attempted: true, Found: false, ScanComplete: true}
	}

	// timed out mid-scan: remember where to resume.
	st.LastScanPosition = lastProbed
	st.HasLastScanPosition = true
	return Result{Attempted: true, Found: false}
}

// rateLimited applies the dual rate limit: a short cooldown after
// every attempt, and a longer floor after the last success.
func (s *Scanner) rateLimited(st *State, refreshInterval time.Duration, now time.Time) (time.Duration, bool) {
	if st.HasLastRediscoveryAttempt {
		cooldown := 3 * refreshInterval
		if elapsed := now.Sub(st.LastRediscoveryAttempt); elapsed < cooldown {
			return cooldown - elapsed, true
		}
	}

	// 24h floor, measured only from the last successful rediscovery;
	// time since first_offline_time is not checked here or by the
	// caller.
	if st.HasLastSuccessfulRediscovery {
		if elapsed := now.Sub(st.LastSuccessfulRediscovery); elapsed < domain.PeriodicRediscoveryInterval {
			return domain.PeriodicRediscoveryInterval - elapsed, true
		}
	}
	return 0, false
}

// scanRange probes [start, DEFAULT_SCAN_END_IP] with bounded
// concurrency, returning as soon as a match is found or the context
// is cancelled.
func (s *Scanner) scanRange(ctx context.Context, hubIP, deviceNetworkID string, start int) (found bool, foundIP string, lastProbed int, completed bool) {
	prefix := subnetPrefix(hubIP)
	sem := make(chan struct{}, domain.MaxConcurrentConnections)

	var wg sync.WaitGroup
	var mu sync.Mutex
	matchIP := ""
	highest := start - 1
	var cancelOnce sync.Once
	scanCtx, cancelScan := context.WithCancel(ctx)
	defer cancelOnce.Do(cancelScan)

	for ip := start; ip <= domain.DefaultScanEndIP; ip++ {
		select {
		case <-scanCtx.Done():
			mu.Lock()
			lastProbed = highest + 1
			mu.Unlock()
			wg.Wait()
			return matchIP != "", matchIP, lastProbed, false
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(octet int) {
			defer wg.Done()
			defer func() { <-sem }()

			target := fmt.Sprintf("%s.%d", prefix, octet)
			info, err := s.prober(scanCtx, target)

			mu.Lock()
			if octet > highest {
				highest = octet
			}
			mu.Unlock()

			if err != nil || info.App != "PitBoss" {
				return
			}
			if deviceNetworkID != "" && info.ID != deviceNetworkID {
				return
			}

			mu.Lock()
			if matchIP == "" {
				matchIP = target
			}
			mu.Unlock()
			cancelOnce.Do(cancelScan)
		}(ip)
	}

	wg.Wait()

	if matchIP != "" {
		return true, matchIP, highest, false
	}
	select {
	case <-ctx.Done():
		return false, "", highest, false
	default:
		return false, "", highest, true
	}
}

func subnetPrefix(hubIP string) string {
	dots := 0
	for i := len(hubIP) - 1; i >= 0; i-- {
		if hubIP[i] == '.' {
			dots++
			if dots == 1 {
				return hubIP[:i]
			}
		}
	}
	return hubIP
}
