// Package daemon provides the background process that keeps planners and
// calendars converged.
//
// The daemon:
// 1. Runs scheduled sync cycles for every enabled account (cron)
// 2. Debounces webhook-triggered syncs so notification bursts collapse
// 3. Hot reloads the accounts file on edit
// 4. Pauses cycles while the calendar API is unreachable
// 5. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	stdsync "sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aqademiq/aqsync/internal/config"
	"github.com/aqademiq/aqsync/internal/connectivity"
	"github.com/aqademiq/aqsync/internal/db"
	"github.com/aqademiq/aqsync/internal/gcal"
	"github.com/aqademiq/aqsync/internal/sync"
)

// Config holds daemon-specific knobs. Account and calendar settings come
// from the application config.
type Config struct {
	// PollCron schedules the full sync cycle across all enabled accounts.
	PollCron string

	// DebounceInterval is how long a triggered user sits in the queue
	// before syncing. Rapid re-triggers within the window collapse.
	DebounceInterval time.Duration

	// Logger for daemon activity.
	Logger *log.Logger

	// Sink receives engine lifecycle events (dashboard broadcast).
	Sink sync.EventSink
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PollCron:         "*/5 * * * *",
		DebounceInterval: 3 * time.Second,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// userEngine pairs an account with the engine wired to its credentials.
type userEngine struct {
	account config.Account
	engine  sync.Engine
}

// Daemon orchestrates scheduled and webhook-triggered sync cycles.
type Daemon struct {
	store   *db.DB
	appCfg  *config.Config
	config  *Config
	monitor *connectivity.Monitor

	enginesMu stdsync.RWMutex
	engines   map[string]userEngine // userID -> engine

	triggerQueue   map[string]time.Time // userID -> queued-at
	triggerQueueMu stdsync.Mutex

	cron    *cron.Cron
	watcher *AccountsWatcher

	ctx    context.Context
	cancel context.CancelFunc
	wg     stdsync.WaitGroup
}

// New creates a Daemon. Accounts load on Start, not here, so a daemon can
// be constructed before the accounts file exists.
func New(store *db.DB, appCfg *config.Config, cfg *Config) (*Daemon, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if appCfg == nil {
		return nil, fmt.Errorf("app config cannot be nil")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = DefaultConfig().Logger
	}
	if cfg.PollCron == "" {
		cfg.PollCron = appCfg.Daemon.PollCron
	}
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = appCfg.Daemon.Debounce
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		store:  store,
		appCfg: appCfg,
		config: cfg,
		monitor: connectivity.New(connectivity.Options{
			ProbeURL: appCfg.Connectivity.ProbeURL,
			Interval: appCfg.Connectivity.Interval,
			Logger:   cfg.Logger,
		}),
		engines:      make(map[string]userEngine),
		triggerQueue: make(map[string]time.Time),
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// The daemon will:
// 1. Load accounts and build per-user engines
// 2. Run one immediate full cycle
// 3. Schedule recurring cycles per the cron expression
// 4. Process debounced triggers and accounts-file reloads
//
// This blocks until ctx is cancelled or an error occurs.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if err := d.ReloadAccounts(); err != nil {
		return fmt.Errorf("initial account load failed: %w", err)
	}

	d.monitor.Start(d.ctx)

	d.cron = cron.New()
	if _, err := d.cron.AddFunc(d.config.PollCron, d.TriggerAll); err != nil {
		return fmt.Errorf("invalid poll schedule %q: %w", d.config.PollCron, err)
	}
	d.cron.Start()

	watcher, err := NewAccountsWatcher(d.appCfg.AccountsPath)
	if err != nil {
		return fmt.Errorf("failed to create accounts watcher: %w", err)
	}
	d.watcher = watcher
	if err := d.watcher.Start(); err != nil {
		// A missing accounts directory is not fatal: reload stays manual.
		d.config.Logger.Printf("Accounts watcher disabled: %v", err)
		_ = d.watcher.Stop()
		d.watcher = nil
	}

	d.wg.Add(2)
	go d.processTriggerQueue()
	go d.watchAccountsFile()

	// First cycle runs immediately; cron covers the rest.
	d.TriggerAll()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()
	if d.cron != nil {
		<-d.cron.Stop().Done()
	}
	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			d.config.Logger.Printf("Error closing accounts watcher: %v", err)
		}
	}
	d.monitor.Stop()
	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// ReloadAccounts re-reads the accounts file and rebuilds per-user engines.
// Unknown users disappear from the engine map; their queued triggers drain
// as no-ops.
func (d *Daemon) ReloadAccounts() error {
	accounts, err := config.LoadAccounts(d.appCfg.AccountsPath)
	if err != nil {
		return err
	}

	engines := make(map[string]userEngine)
	for _, account := range config.EnabledAccounts(accounts) {
		client, err := gcal.NewClient(&gcal.Config{
			BaseURL:    d.appCfg.Calendar.BaseURL,
			Token:      account.Token,
			Timeout:    d.appCfg.Calendar.Timeout,
			MaxRetries: d.appCfg.Calendar.MaxRetries,
			Logger:     d.config.Logger,
		})
		if err != nil {
			return fmt.Errorf("account %s: %w", account.UserID, err)
		}
		engines[account.UserID] = userEngine{
			account: account,
			engine: sync.New(d.store, client, &sync.Options{
				CalendarID: account.CalendarID,
				ExportNew:  d.appCfg.Sync.ExportNew,
				Logger:     d.config.Logger,
				Sink:       d.config.Sink,
			}),
		}
	}

	d.enginesMu.Lock()
	d.engines = engines
	d.enginesMu.Unlock()

	d.config.Logger.Printf("Loaded %d enabled accounts", len(engines))
	return nil
}

// Trigger queues a sync for userID. Returns false when the user is not an
// enabled account.
func (d *Daemon) Trigger(userID string) bool {
	d.enginesMu.RLock()
	_, ok := d.engines[userID]
	d.enginesMu.RUnlock()
	if !ok {
		return false
	}

	d.triggerQueueMu.Lock()
	d.triggerQueue[userID] = time.Now()
	d.triggerQueueMu.Unlock()
	return true
}

// TriggerAll queues a sync for every enabled account.
func (d *Daemon) TriggerAll() {
	d.enginesMu.RLock()
	users := make([]string, 0, len(d.engines))
	for userID := range d.engines {
		users = append(users, userID)
	}
	d.enginesMu.RUnlock()

	d.triggerQueueMu.Lock()
	now := time.Now()
	for _, userID := range users {
		d.triggerQueue[userID] = now
	}
	d.triggerQueueMu.Unlock()
}

// EngineFor returns the engine serving userID.
func (d *Daemon) EngineFor(userID string) (sync.Engine, bool) {
	d.enginesMu.RLock()
	defer d.enginesMu.RUnlock()
	ue, ok := d.engines[userID]
	if !ok {
		return nil, false
	}
	return ue.engine, true
}

// AccountFor returns the account record for userID.
func (d *Daemon) AccountFor(userID string) (config.Account, bool) {
	d.enginesMu.RLock()
	defer d.enginesMu.RUnlock()
	ue, ok := d.engines[userID]
	return ue.account, ok
}

// Users returns the enabled account user ids.
func (d *Daemon) Users() []string {
	d.enginesMu.RLock()
	defer d.enginesMu.RUnlock()
	users := make([]string, 0, len(d.engines))
	for userID := range d.engines {
		users = append(users, userID)
	}
	return users
}

// Online reports the connectivity monitor's latest state.
func (d *Daemon) Online() bool {
	return d.monitor.Online()
}

// processTriggerQueue drains due triggers on a debounce tick. While the
// calendar API is unreachable, entries stay queued.
func (d *Daemon) processTriggerQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.processPendingTriggers()
		}
	}
}

func (d *Daemon) processPendingTriggers() {
	if !d.monitor.Online() {
		return
	}

	now := time.Now()
	var due []string
	d.triggerQueueMu.Lock()
	for userID, queuedAt := range d.triggerQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		due = append(due, userID)
		delete(d.triggerQueue, userID)
	}
	d.triggerQueueMu.Unlock()

	for _, userID := range due {
		select {
		case <-d.ctx.Done():
			return
		default:
		}
		d.syncUser(userID)
	}
}

func (d *Daemon) syncUser(userID string) {
	eng, ok := d.EngineFor(userID)
	if !ok {
		// Account removed while queued.
		return
	}

	run, err := eng.SyncUser(d.ctx, userID)
	if err != nil {
		d.config.Logger.Printf("Sync failed for %s: %v", userID, err)
		return
	}
	if run != nil && run.Status != db.RunStatusOK {
		d.config.Logger.Printf("Sync for %s finished with status %s", userID, run.Status)
	}
}

// watchAccountsFile applies hot reloads when the accounts file changes.
func (d *Daemon) watchAccountsFile() {
	defer d.wg.Done()

	if d.watcher == nil {
		return
	}
	for {
		select {
		case <-d.ctx.Done():
			return
		case _, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			d.config.Logger.Println("Accounts file changed, reloading")
			if err := d.ReloadAccounts(); err != nil {
				d.config.Logger.Printf("Account reload failed: %v", err)
			}
		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.config.Logger.Printf("Accounts watcher error: %v", err)
		}
	}
}
