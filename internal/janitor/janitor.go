package janitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"github.com/AKMHZJ/localserver/pkg/config"
	"github.com/AKMHZJ/localserver/pkg/logger"
)

// Janitor sweeps upload directories on a cron schedule, removing every
// .upload-*.part temp file whatever its age and, when max_age is set,
// uploads older than that age.

// Start launches the sweep scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, cfg *config.Config) (context.CancelFunc, error) {
	jc := cfg.Janitor
	if !jc.Enabled {
		logger.Info("janitor_disabled")
		return func() {}, nil
	}
	dirs := cfg.UploadDirs()
	if len(dirs) == 0 {
		logger.Info("janitor_no_upload_dirs")
		return func() {}, nil
	}

	cronExpr := jc.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid janitor cron expression: %s", jc.Cron)
	}

	logger.Info("janitor_enabled", "cron", cronExpr, "dirs", strings.Join(dirs, ","), "max_age", jc.MaxAge.Duration())
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cronExpr, dirs, jc.MaxAge.Duration())
	return cancel, nil
}

// runScheduler computes the next cron tick with gronx and sleeps until it.
func runScheduler(ctx context.Context, cronExpr string, dirs []string, maxAge time.Duration) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("janitor_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("janitor_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			Sweep(dirs, maxAge)
		case <-ctx.Done():
			logger.Info("janitor_stopping")
			return
		}
	}
}

// Sweep runs one pass over the upload directories.
func Sweep(dirs []string, maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			logger.Warn("janitor_readdir_failed", "dir", dir, "error", err)
			continue
		}
		var removed int
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			name := e.Name()
			p := filepath.Join(dir, name)
			fi, err := e.Info()
			if err != nil {
				continue
			}
			stale := strings.HasPrefix(name, ".upload-") && strings.HasSuffix(name, ".part")
			aged := maxAge > 0 && fi.ModTime().Before(cutoff)
			if stale || aged {
				if err := os.Remove(p); err != nil {
					logger.Warn("janitor_remove_failed", "path", p, "error", err)
					continue
				}
				removed++
			}
		}
		if removed > 0 {
			logger.Info("janitor_swept", "dir", dir, "removed", removed)
		}
	}
}
