package jobqueue

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/siteforge-io/siteforge/app/models"
	"github.com/siteforge-io/siteforge/internal/pkg/database"
	"github.com/siteforge-io/siteforge/internal/pkg/entitlement"
)

// Manager manages the global job queue and background tasks
type Manager struct {
	queue           *Queue
	entitlements    *entitlement.Service
	sweepTicker     *time.Ticker
	outOfSyncTicker *time.Ticker
	stopCh          chan struct{}
	wg              sync.WaitGroup
	mu              sync.Mutex
	running         bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		// Get worker count from settings, fallback to 5 if not available
		workerCount := 5
		if settings := getAppSettings(); settings != nil {
			workerCount = settings.GetJobQueueWorkerCount()
		}

		globalManager = &Manager{
			queue:  NewQueue(workerCount),
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// SetEntitlementService overrides the service used by the background
// sweepers. Mainly useful in tests; Start falls back to the database-backed
// service when none is set.
func (m *Manager) SetEntitlementService(svc *entitlement.Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entitlements = svc
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	// Start the job queue
	m.queue.Start()

	if m.entitlements == nil {
		m.entitlements = entitlement.NewServiceFromDB(database.GetDB())
	}

	// Get intervals from settings
	sweepInterval := 60 * time.Minute // Default fallback
	reportInterval := 6 * time.Hour   // Default fallback
	if settings := getAppSettings(); settings != nil {
		if v := settings.GetSweepIntervalMinutes(); v > 0 {
			sweepInterval = time.Duration(v) * time.Minute
		}
		if v := settings.GetOutOfSyncReportMinutes(); v > 0 {
			reportInterval = time.Duration(v) * time.Minute
		}
	}

	// Start expired subscription sweeper - configurable interval
	m.sweepTicker = time.NewTicker(sweepInterval)
	m.wg.Add(1)
	go m.sweepWorker()

	// Start out-of-sync reporter - configurable interval
	m.outOfSyncTicker = time.NewTicker(reportInterval)
	m.wg.Add(1)
	go m.outOfSyncWorker()

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
	}
	if m.outOfSyncTicker != nil {
		m.outOfSyncTicker.Stop()
	}

	// Signal workers to stop
	close(m.stopCh)
	m.stopCh = nil
	m.running = false

	// Wait for background workers to finish
	m.wg.Wait()

	// Stop the job queue
	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// sweepWorker runs periodically to downgrade expired subscriptions
func (m *Manager) sweepWorker() {
	defer m.wg.Done()
	interval := 60 // Default fallback
	if settings := getAppSettings(); settings != nil {
		interval = settings.GetSweepIntervalMinutes()
	}
	log.Infof("[JobQueue Manager] Started subscription sweep worker (interval: %d minutes)", interval)

	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Subscription sweep worker stopping")
			return
		case <-m.sweepTicker.C:
			log.Debug("[JobQueue Manager] Running expired subscription sweep")
			if err := m.runSweepOnce(); err != nil {
				log.Errorf("[JobQueue Manager] Subscription sweep error: %v", err)
			}
		}
	}
}

// outOfSyncWorker runs periodically to report external subscriptions that
// our records disagree with
func (m *Manager) outOfSyncWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Out-of-sync worker stopping")
			return
		case <-m.outOfSyncTicker.C:
			if err := m.runOutOfSyncReportOnce(); err != nil {
				log.Errorf("[JobQueue Manager] Out-of-sync report error: %v", err)
			}
		}
	}
}

func (m *Manager) runSweepOnce() error {
	count, err := m.entitlements.AutoDowngradeExpired(time.Now())
	if err != nil {
		return err
	}
	if count > 0 {
		log.Infof("[JobQueue Manager] Downgraded %d expired subscriptions", count)
	}
	return nil
}

func (m *Manager) runOutOfSyncReportOnce() error {
	_, err := m.entitlements.FindOutOfSyncProjects(time.Now())
	return err
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// getAppSettings safely returns the current app settings
func getAppSettings() *models.AppSettings {
	return models.GetAppSettings()
}

// RunSweepOnce exposes a manual trigger for a single subscription sweep (admin use).
func (m *Manager) RunSweepOnce() error {
	return m.runSweepOnce()
}
