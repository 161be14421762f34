package kerberos

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/marmos91/extauth/internal/logger"
)

// keytabPollInterval is the default interval at which the keytab file is
// polled for changes.
const keytabPollInterval = 60 * time.Second

// keytabReloader is implemented by Acceptor.
type keytabReloader interface {
	ReloadKeytab() error
}

// KeytabManager watches a keytab file for changes and triggers hot-reload.
//
// It polls the file modification time rather than using fsnotify: keytabs
// are usually replaced by rename from kadmin or k5srvutil, and the
// directory may not be watchable.
//
// Thread Safety: All methods are safe for concurrent use.
type KeytabManager struct {
	path     string
	target   keytabReloader
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	mu       sync.Mutex
	lastMod  time.Time
}

// NewKeytabManager creates a new keytab file manager (not yet started).
func NewKeytabManager(path string, target keytabReloader, interval time.Duration) *KeytabManager {
	if interval <= 0 {
		interval = keytabPollInterval
	}
	return &KeytabManager{
		path:     path,
		target:   target,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start records the file's modification time and begins polling.
func (km *KeytabManager) Start() error {
	km.mu.Lock()
	defer km.mu.Unlock()

	info, err := os.Stat(km.path)
	if err != nil {
		return fmt.Errorf("keytab file not accessible: %w", err)
	}
	km.lastMod = info.ModTime()

	go km.pollLoop()

	logger.Info("Keytab hot-reload started",
		logger.KeyPath, km.path,
		"poll_interval", km.interval.String(),
	)

	return nil
}

// Stop stops the polling goroutine. Safe to call multiple times or on a
// manager that was never started.
func (km *KeytabManager) Stop() {
	km.stopOnce.Do(func() { close(km.stopCh) })
}

func (km *KeytabManager) pollLoop() {
	ticker := time.NewTicker(km.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			km.checkAndReload()
		case <-km.stopCh:
			return
		}
	}
}

// checkAndReload reloads the keytab when its modification time moved.
func (km *KeytabManager) checkAndReload() {
	km.mu.Lock()
	defer km.mu.Unlock()

	info, err := os.Stat(km.path)
	if err != nil {
		logger.Error("Keytab file stat failed", logger.KeyPath, km.path, logger.Err(err))
		return
	}

	modTime := info.ModTime()
	if modTime.Equal(km.lastMod) {
		return
	}

	if err := km.target.ReloadKeytab(); err != nil {
		logger.Error("Keytab reload failed", logger.KeyPath, km.path, logger.Err(err))
		return
	}

	km.lastMod = modTime
	logger.Info("Keytab reloaded", logger.KeyPath, km.path)
}
