package connection

import (
	"context"
	"time"

	"github.com/wsbase-protocol/wsbase-go/pkg/log"
	"github.com/wsbase-protocol/wsbase-go/pkg/transport"
)

// Keepalive defaults.
const (
	// DefaultPingInterval is how often a ping is sent while Ready.
	DefaultPingInterval = 30 * time.Second

	// DefaultPongTimeout is how long to wait for each pong.
	DefaultPongTimeout = 5 * time.Second

	// DefaultMaxMissedPongs is how many pongs may be missed in a row
	// before the channel is considered dead.
	DefaultMaxMissedPongs = 3
)

// KeepAliveConfig configures liveness probing with ctl.ping envelopes.
type KeepAliveConfig struct {
	// PingInterval is the time between pings. Zero means
	// DefaultPingInterval.
	PingInterval time.Duration

	// PongTimeout is how long to wait for a pong. Zero means
	// DefaultPongTimeout.
	PongTimeout time.Duration

	// MaxMissedPongs is how many consecutive misses kill the channel.
	// Zero means DefaultMaxMissedPongs.
	MaxMissedPongs int
}

func (cfg KeepAliveConfig) withDefaults() KeepAliveConfig {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = DefaultPongTimeout
	}
	if cfg.MaxMissedPongs <= 0 {
		cfg.MaxMissedPongs = DefaultMaxMissedPongs
	}
	return cfg
}

// runKeepAlive probes the channel while the pumps are running. Too many
// missed pongs close the channel, which surfaces as a transport failure
// to the supervisor and lets the reconnection policy take over.
func (c *Conn) runKeepAlive(ch transport.Channel, stop <-chan struct{}) {
	cfg := c.opts.KeepAlive.withDefaults()

	ticker := time.NewTicker(cfg.PingInterval)
	defer ticker.Stop()

	missed := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(c.baseCtx, cfg.PongTimeout)
		_, err := c.Ping(ctx)
		cancel()

		if err == nil {
			missed = 0
			continue
		}
		if c.closing() {
			return
		}

		missed++
		c.logError(log.LayerConnection, err, "keepalive")
		if missed >= cfg.MaxMissedPongs {
			ch.Close()
			return
		}
	}
}
