package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sndnv/stasis-sub000/internal/adapter/attributes"
	"github.com/sndnv/stasis-sub000/internal/adapter/catalog"
	"github.com/sndnv/stasis-sub000/internal/adapter/checksum"
	"github.com/sndnv/stasis-sub000/internal/adapter/compressor"
	"github.com/sndnv/stasis-sub000/internal/adapter/core"
	"github.com/sndnv/stasis-sub000/internal/adapter/encryption"
	"github.com/sndnv/stasis-sub000/internal/adapter/notifier"
	"github.com/sndnv/stasis-sub000/internal/adapter/staging"
	"github.com/sndnv/stasis-sub000/internal/adapter/storage"
	"github.com/sndnv/stasis-sub000/internal/config"
	"github.com/sndnv/stasis-sub000/internal/domain"
	"github.com/sndnv/stasis-sub000/internal/infrastructure/logger"
	"github.com/sndnv/stasis-sub000/internal/infrastructure/metrics"
	"github.com/sndnv/stasis-sub000/internal/infrastructure/scheduler"
	"github.com/sndnv/stasis-sub000/internal/tracker"
	"github.com/sndnv/stasis-sub000/internal/usecase"
	"github.com/sndnv/stasis-sub000/internal/usecase/backup"
	"github.com/sndnv/stasis-sub000/internal/usecase/datasets"
	"github.com/sndnv/stasis-sub000/internal/usecase/recovery"
)

const (
	notificationTimeout = 30 * time.Second
	summaryTimeout      = 2 * time.Second
)

type App struct {
	config *config.Config
	logger *logger.Logger

	catalog *catalog.Catalog
	core    *core.Client
	staging *staging.Directory

	backups    *tracker.BackupTracker
	recoveries *tracker.RecoveryTracker
	servers    *tracker.ServerTracker
	aggregator *tracker.Aggregator

	backup    *backup.Backup
	recovery  *recovery.Recovery
	search    *usecase.Search
	monitor   *usecase.ServerMonitor
	cleanup   *usecase.Cleanup
	scheduler *scheduler.Scheduler
	executor  *Executor
	notifier  *notifier.Telegram
}

func New(cfg *config.Config) (*App, error) {
	log, err := logger.New(cfg.App.LogLevel, cfg.App.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	device, err := uuid.Parse(cfg.Device.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid device id: %w", err)
	}
	user, err := uuid.Parse(cfg.Device.User)
	if err != nil {
		return nil, fmt.Errorf("invalid user id: %w", err)
	}

	api, err := catalog.Open(cfg.Catalog.Path, device)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	client, err := initializeCore(cfg, log)
	if err != nil {
		api.Close()
		return nil, err
	}

	compression, err := compressor.NewProvider(cfg.Backup.Compression.Default, cfg.Backup.Compression.DisabledExtensions)
	if err != nil {
		api.Close()
		return nil, fmt.Errorf("failed to initialize compression: %w", err)
	}

	encryptor, secrets, err := initializeEncryption(cfg, user, device)
	if err != nil {
		api.Close()
		return nil, err
	}

	hasher, err := checksum.New(cfg.Backup.Checksum)
	if err != nil {
		api.Close()
		return nil, fmt.Errorf("failed to initialize checksum: %w", err)
	}

	stage, err := staging.NewDirectory(cfg.Staging.Directory)
	if err != nil {
		api.Close()
		return nil, fmt.Errorf("failed to initialize staging: %w", err)
	}

	backups := tracker.NewBackupTracker()
	recoveries := tracker.NewRecoveryTracker()
	servers := tracker.NewServerTracker()

	codec := datasets.NewCodec(compression, encryptor, secrets)
	loader := datasets.NewLoader(api, client, codec)
	extractor := attributes.NewExtractor(hasher, compression)

	backupUC := backup.NewBackup(
		api,
		loader,
		codec,
		extractor,
		backup.Providers{
			Core:        client,
			Compression: compression,
			Encryptor:   encryptor,
			Secrets:     secrets,
			Staging:     stage,
			Checksum:    hasher,
		},
		backup.Limits{MaxPartSize: cfg.Backup.MaxPartSize, Parallelism: cfg.Backup.Parallelism},
		backups,
		log.Named("backup"),
	)

	recoveryUC := recovery.NewRecovery(
		loader,
		extractor,
		recovery.Providers{
			Core:        client,
			Compression: compression,
			Encryptor:   encryptor,
			Secrets:     secrets,
			Staging:     stage,
			Checksum:    hasher,
		},
		attributes.Apply,
		recoveries,
		log.Named("recovery"),
	)

	var telegram *notifier.Telegram
	if cfg.Notifications.Telegram.Enabled {
		telegram, err = notifier.NewTelegram(&cfg.Notifications.Telegram)
		if err != nil {
			log.Errorf("Failed to initialize Telegram notifications: %v", err)
		} else {
			log.Infof("✓ Telegram notifications enabled")
		}
	}

	a := &App{
		config:     cfg,
		logger:     log,
		catalog:    api,
		core:       client,
		staging:    stage,
		backups:    backups,
		recoveries: recoveries,
		servers:    servers,
		aggregator: tracker.NewAggregator(backups, recoveries, servers),
		backup:     backupUC,
		recovery:   recoveryUC,
		search:     usecase.NewSearch(api, loader, log.Named("search")),
		monitor: usecase.NewServerMonitor(
			api,
			servers,
			metrics.Get(),
			log.Named("monitor"),
			cfg.Monitor.InitialDelay,
			cfg.Monitor.Interval,
		),
		cleanup: usecase.NewCleanup(
			[]usecase.CleanupTarget{{Name: "staging", Store: stage}},
			metrics.Get(),
			log.Named("cleanup"),
			cfg.Staging.MaxAge,
		),
		scheduler: scheduler.New(log.Named("scheduler")),
		executor:  NewExecutor(metrics.Get(), log.Named("executor")),
		notifier:  telegram,
	}

	a.executor.OnCompleted(a.notify)

	return a, nil
}

func initializeCore(cfg *config.Config, log *logger.Logger) (*core.Client, error) {
	var targets []core.Target

	for _, storeCfg := range cfg.GetEnabledStores() {
		store, err := storage.New(&storeCfg)
		if err != nil {
			log.Errorf("Failed to initialize [%s] store: %v", storeCfg.Type, err)
			continue
		}

		name := storeCfg.Name
		if name == "" {
			name = storeCfg.Type
		}

		targets = append(targets, core.Target{Name: name, Storage: store})
		log.Infof("✓ Crate store [%s] enabled (%s)", name, storeCfg.Type)
	}

	client, err := core.NewClient(targets, cfg.Core.StorageLimit, cfg.Core.ReservationTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize core client: %w", err)
	}

	return client, nil
}

// initializeEncryption selects the configured encryptor. Age does not use
// derived secrets but the metadata codec still requires a secret source, so
// one is derived from the device identity when no secret file is configured.
func initializeEncryption(
	cfg *config.Config,
	user domain.UserID,
	device domain.DeviceID,
) (domain.Encryptor, domain.Secrets, error) {
	var secrets *encryption.DeviceSecret
	var err error

	if cfg.Device.SecretFile != "" {
		secrets, err = encryption.LoadDeviceSecret(user, device, cfg.Device.SecretFile)
	} else {
		secrets, err = encryption.NewDeviceSecret(user, device, device[:])
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load device secret: %w", err)
	}

	switch cfg.Backup.Encryption.Provider {
	case "age":
		encryptor, err := encryption.LoadAge(cfg.Backup.Encryption.IdentityFile, cfg.Backup.Encryption.Recipients)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize age encryption: %w", err)
		}
		return encryptor, secrets, nil
	default:
		return encryption.NewAES(), secrets, nil
	}
}

// StartBackup starts a backup of the definition in the background.
func (a *App) StartBackup(
	ctx context.Context,
	definition domain.DatasetDefinitionID,
	descriptor backup.Descriptor,
) (domain.OperationID, error) {
	return a.executor.Start(ctx, domain.OperationBackup, func(ctx context.Context, op domain.OperationID) error {
		_, err := a.backup.Execute(ctx, op, definition, descriptor)
		return err
	})
}

// StartRecovery starts a recovery in the background.
func (a *App) StartRecovery(ctx context.Context, descriptor recovery.Descriptor) (domain.OperationID, error) {
	if err := descriptor.Validate(); err != nil {
		return domain.OperationID{}, fmt.Errorf("invalid recovery request: %w", err)
	}

	return a.executor.Start(ctx, domain.OperationRecovery, func(ctx context.Context, op domain.OperationID) error {
		return a.recovery.Execute(ctx, op, descriptor)
	})
}

func (a *App) Wait(ctx context.Context, op domain.OperationID) error {
	return a.executor.Wait(ctx, op)
}

func (a *App) Stop(op domain.OperationID) error {
	return a.executor.Stop(op)
}

func (a *App) Operations() (active, completed []Operation) {
	return a.executor.Active(), a.executor.Completed()
}

// Progress streams the progress of an operation until ctx is done.
func (a *App) Progress(ctx context.Context, op domain.OperationID) <-chan tracker.Progress {
	return a.aggregator.OperationUpdates(ctx, op)
}

// Summary returns the count-based view of a known operation.
func (a *App) Summary(op domain.OperationID) (tracker.Summary, bool) {
	if state, ok := a.backups.StateOf(op); ok {
		return state.Progress(), true
	}
	if state, ok := a.recoveries.StateOf(op); ok {
		return state.Progress(), true
	}
	return tracker.Summary{}, false
}

// AwaitSummary returns the summary of op once the trackers have recorded its
// completion. Stopped operations are never completed, so after a short wait
// the latest known summary is returned instead.
func (a *App) AwaitSummary(ctx context.Context, op domain.OperationID) (tracker.Summary, bool) {
	ctx, cancel := context.WithTimeout(ctx, summaryTimeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		summary, ok := a.Summary(op)
		if ok && summary.Completed != nil {
			return summary, true
		}

		select {
		case <-ctx.Done():
			return summary, ok
		case <-ticker.C:
		}
	}
}

func (a *App) Search(ctx context.Context, query string, until *time.Time) ([]usecase.DefinitionMatches, error) {
	return a.search.Execute(ctx, query, until)
}

func (a *App) Definitions(ctx context.Context) ([]domain.DatasetDefinition, error) {
	return a.catalog.DatasetDefinitions(ctx)
}

func (a *App) CreateDefinition(ctx context.Context, request domain.CreateDatasetDefinition) (domain.DatasetDefinitionID, error) {
	request.Device = a.catalog.Device()
	return a.catalog.CreateDatasetDefinition(ctx, request)
}

func (a *App) Entries(ctx context.Context, definition domain.DatasetDefinitionID) ([]domain.DatasetEntry, error) {
	return a.catalog.DatasetEntries(ctx, definition)
}

func (a *App) Schedules(ctx context.Context) ([]domain.Schedule, error) {
	return a.catalog.PublicSchedules(ctx)
}

func (a *App) PutSchedule(ctx context.Context, schedule domain.Schedule) error {
	return a.catalog.PutSchedule(ctx, schedule)
}

// Run schedules the configured backups and the staging cleanup, monitors the
// API server and serves metrics until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	schedules := a.config.GetEnabledSchedules()
	a.logger.Infof("Application started with %d backup schedule(s)", len(schedules))

	for _, schedule := range schedules {
		if err := a.scheduleBackup(schedule); err != nil {
			return err
		}
	}

	cleanupSchedule := a.config.Staging.CleanupSchedule
	a.logger.Infof("Scheduling staging cleanup: %s", cleanupSchedule)

	if err := a.scheduler.AddJob("cleanup", cleanupSchedule, a.cleanup.Execute); err != nil {
		return fmt.Errorf("failed to schedule cleanup: %w", err)
	}

	a.scheduler.Start()
	a.logger.Infof("Scheduler started successfully")

	if addr := a.config.App.MetricsAddress; addr != "" {
		metrics.Serve(ctx, addr, a.logger.Named("metrics"))
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.monitor.Run(ctx)
	})

	g.Go(func() error {
		for state := range a.aggregator.Subscribe(ctx) {
			for server, status := range state.Servers {
				if !status.Reachable {
					a.logger.Debugf("Server [%s] unreachable since [%s]", server, status.Timestamp.Format(time.RFC3339))
				}
			}
		}
		return nil
	})

	return g.Wait()
}

func (a *App) scheduleBackup(schedule config.ScheduleConfig) error {
	definition, err := uuid.Parse(schedule.Definition)
	if err != nil {
		return fmt.Errorf("invalid definition for schedule [%s]: %w", schedule.Name, err)
	}

	rulesFile := schedule.RulesFile
	if rulesFile == "" {
		rulesFile = a.config.Backup.RulesFile
	}

	name := schedule.Name
	if name == "" {
		name = "backup-" + schedule.Definition
	}

	a.logger.Infof("✓ Scheduled backup [%s] of definition [%s]: %s", name, definition, schedule.Cron)

	return a.scheduler.AddJob(name, schedule.Cron, func(ctx context.Context) error {
		rules, err := loadRules(rulesFile)
		if err != nil {
			return err
		}

		a.logger.Infof("=== Triggered scheduled backup [%s] ===", name)

		op, err := a.StartBackup(ctx, definition, backup.WithRules(rules))
		if err != nil {
			return err
		}

		return a.executor.Wait(ctx, op)
	})
}

// BackupRules reads the rules in path, or in the configured rules file when
// path is empty.
func (a *App) BackupRules(path string) ([]domain.Rule, error) {
	if path == "" {
		path = a.config.Backup.RulesFile
	}
	return loadRules(path)
}

// loadRules reads a rules file; an empty path yields no rules.
func loadRules(path string) ([]domain.Rule, error) {
	if path == "" {
		return nil, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rules file: %w", err)
	}
	defer file.Close()

	rules, err := domain.ParseRules(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules file [%s]: %w", path, err)
	}

	return rules, nil
}

func (a *App) notify(operation Operation, failure error) {
	if a.notifier == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), notificationTimeout)
	defer cancel()

	summary, ok := a.AwaitSummary(ctx, operation.ID)
	if !ok {
		summary = tracker.Summary{Type: operation.Type, Started: operation.Started, Completed: operation.Completed}
	}

	if err := a.notifier.OperationCompleted(ctx, operation.ID, summary, failure); err != nil {
		a.logger.Warnf("Failed to send notification for [%s]: %v", operation.ID, err)
	}
}

func (a *App) Shutdown() {
	a.logger.Infof("Shutting down application...")
	a.scheduler.Stop()
	a.executor.Shutdown()
	a.aggregator.Close()
	a.backups.Close()
	a.recoveries.Close()
	a.servers.Close()
	if err := a.catalog.Close(); err != nil {
		a.logger.Warnf("Failed to close catalog: %v", err)
	}
	a.logger.Close()
}
