package runtime

import (
	"time"

	"github.com/jabolina/go-o2rt/pkg/o2rt/clocksync"
	"github.com/jabolina/go-o2rt/pkg/o2rt/scheduler"
)

// Config holds every runtime tunable: tick rate, discovery/beacon timing,
// and the clock-sync calibration constants. In the same spirit as the
// teacher's plain PeerConfiguration/BaseConfiguration structs, no external
// configuration library is warranted.
type Config struct {
	Application string
	Host        string

	// DiscoveryPort is advisory only: the discovery group itself rides
	// a relt broadcast address keyed by Application, not a bound port.
	DiscoveryPort int
	TCPPort       int
	UDPPort       int

	TickRate       float64
	BeaconInterval time.Duration
	IdleTimeout    time.Duration
	PingInterval   time.Duration

	ClockSync clocksync.Config
}

// DefaultConfig returns a Config with the calibration constants from
// spec.md §4.6/§9 ("Clock smoothing constants") and reasonable periodic
// intervals for a local-network deployment. Ports of 0 mean "let the OS
// choose an ephemeral port".
func DefaultConfig(application string) Config {
	return Config{
		Application:    application,
		Host:           "127.0.0.1",
		TickRate:       scheduler.DefaultTickRate,
		BeaconInterval: time.Second,
		IdleTimeout:    5 * time.Second,
		PingInterval:   time.Second,
		ClockSync:      clocksync.DefaultConfig(),
	}
}
