//go:build linux

package app

import (
	"context"

	"github.com/AKMHZJ/localserver/internal/janitor"
	"github.com/AKMHZJ/localserver/pkg/banner"
	"github.com/AKMHZJ/localserver/pkg/config"
	"github.com/AKMHZJ/localserver/pkg/guard"
	"github.com/AKMHZJ/localserver/pkg/reactor"
	"github.com/AKMHZJ/localserver/pkg/router"
	"github.com/AKMHZJ/localserver/pkg/telemetry"
)

// App assembles the server components and owns their lifecycle.
type App struct {
	cfg     *config.Config
	cfgPath string
	version string

	reactor *reactor.Reactor
}

// New wires the router and reactor and binds every listener. Bind failures
// surface here and are fatal at boot.
func New(cfg *config.Config, cfgPath, version string) (*App, error) {
	rt := router.New(cfg.Timeouts.CGI.Duration())
	limiter := guard.New(cfg.Guard.RPS, cfg.Guard.Burst)

	rc, err := reactor.New(rt, limiter, cfg.Timeouts.Idle.Duration(), cfg.Timeouts.Tick.Duration())
	if err != nil {
		return nil, err
	}
	if err := rc.Bind(cfg.Listeners()); err != nil {
		return nil, err
	}
	return &App{cfg: cfg, cfgPath: cfgPath, version: version, reactor: rc}, nil
}

// Run starts the admin endpoint and the janitor, prints the banner and
// blocks in the reactor loop until ctx is cancelled or the loop fails.
func (a *App) Run(ctx context.Context) error {
	telemetry.Serve(a.cfg.Telemetry.Addr)

	cancelJanitor, err := janitor.Start(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer cancelJanitor()

	var addrs []string
	for _, l := range a.cfg.Listeners() {
		addrs = append(addrs, l.Addr())
	}
	banner.Print(addrs, a.cfgPath, a.version)

	return a.reactor.Run(ctx)
}
