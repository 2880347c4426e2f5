package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/redhat-data-and-ai/usernaut-sync/pkg/idp"
	"github.com/redhat-data-and-ai/usernaut-sync/pkg/logger"
	"github.com/redhat-data-and-ai/usernaut-sync/pkg/reconcile"
	"github.com/redhat-data-and-ai/usernaut-sync/pkg/store"
	"github.com/redhat-data-and-ai/usernaut-sync/pkg/store/models"
)

const (
	// oidcProviderName is the AuthenticationProvider name this driver owns.
	oidcProviderName = "oidc"

	// fetchBatchSize is the page size passed to FetchEnabledUsers.
	fetchBatchSize = 100

	// maxErrorsLogged caps how many error strings are logged verbatim per
	// binding (spec.md §4.D.4).
	maxErrorsLogged = 10

	leaseTTL = 55 * time.Minute
)

// IdPClientFactory builds a fresh Admin Client for one tick. The driver
// builds exactly one client per tick and discards it afterwards — its
// cached token is the only state shared across the tick (spec.md §5).
type IdPClientFactory func() *idp.Client

// Driver is the Scheduled Driver (component D): a cron-ticked job that
// partitions AuthenticationProvider bindings across replicas and calls the
// Reconciliation Engine for each owned binding.
type Driver struct {
	store   store.DirectoryStore
	engine  *reconcile.Engine
	newIdP  IdPClientFactory
	lease   *Lease
	options reconcile.Options

	replicaCount int
	replicaIndex int
	tickInterval time.Duration

	cron *cron.Cron
}

// Config configures a Driver.
type Config struct {
	Store        store.DirectoryStore
	NewIdPClient IdPClientFactory
	Lease        *Lease
	Options      reconcile.Options
	ReplicaCount int
	ReplicaIndex int
	TickInterval time.Duration
}

// New builds a Driver. TickInterval defaults to one hour (spec.md §4.D).
func New(cfg Config) *Driver {
	if cfg.ReplicaCount < 1 {
		cfg.ReplicaCount = 1
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = time.Hour
	}

	return &Driver{
		store:        cfg.Store,
		engine:       reconcile.New(cfg.Store),
		newIdP:       cfg.NewIdPClient,
		lease:        cfg.Lease,
		options:      cfg.Options,
		replicaCount: cfg.ReplicaCount,
		replicaIndex: cfg.ReplicaIndex,
		tickInterval: cfg.TickInterval,
		cron:         cron.New(),
	}
}

// Start schedules Tick to run every tickInterval (the Config's TickInterval
// when tickInterval is zero) and starts the cron scheduler's own goroutine.
func (d *Driver) Start(ctx context.Context, tickInterval time.Duration) error {
	if tickInterval == 0 {
		tickInterval = d.tickInterval
	}
	spec := fmt.Sprintf("@every %s", tickInterval)
	_, err := d.cron.AddFunc(spec, func() { d.Tick(ctx) })
	if err != nil {
		return fmt.Errorf("scheduler: failed to schedule tick: %w", err)
	}
	d.cron.Start()
	return nil
}

// Stop halts the cron scheduler and blocks until the running tick, if any,
// completes.
func (d *Driver) Stop() {
	<-d.cron.Stop().Done()
}

// Tick runs one pass: build the IdP client, test the connection, fetch the
// snapshot once, and reconcile every owned binding sequentially. A single
// binding's failure never aborts the remaining bindings (spec.md §4.D.5).
func (d *Driver) Tick(ctx context.Context) {
	ctx = logger.WithRequestId(ctx, uuid.Nil)
	log := logger.Logger(ctx).WithField("job", "usernaut-sync-tick")
	log.Info("starting sync tick")

	bindings, err := d.ownedBindings(ctx)
	if err != nil {
		log.WithError(err).Error("failed to enumerate authentication provider bindings")
		return
	}
	if len(bindings) == 0 {
		log.Info("no bindings owned by this replica this tick")
		return
	}

	client := d.newIdP()
	if !client.TestConnection(ctx) {
		log.Error("idp connection test failed, skipping tick")
		return
	}

	raw, err := client.FetchEnabledUsers(ctx, fetchBatchSize)
	if err != nil {
		log.WithError(err).Error("failed to fetch idp snapshot, skipping tick")
		return
	}
	snapshot, normalizeErrs := idp.Normalize(raw)
	for _, e := range normalizeErrs {
		log.Warn(e)
	}

	for _, binding := range bindings {
		d.reconcileBinding(ctx, log, binding, snapshot)
	}
}

func (d *Driver) reconcileBinding(
	ctx context.Context, log *logrus.Entry, binding models.AuthenticationProvider, snapshot []idp.SyncUser,
) {
	bindingLog := log.WithFields(logrus.Fields{
		"teamId":                   binding.TeamID,
		"authenticationProviderId": binding.ID,
	})

	if !d.lease.Acquire(ctx, binding.ID.String(), leaseTTL) {
		bindingLog.Debug("binding already leased by another replica this tick")
		return
	}

	opts := d.options
	if binding.SyncDefaultGroupID != nil {
		opts.DefaultGroupID = binding.SyncDefaultGroupID
	}
	if binding.SyncDefaultGroupName != "" {
		opts.DefaultGroupName = binding.SyncDefaultGroupName
	}

	report, err := d.engine.Reconcile(ctx, binding.TeamID, binding.ID, snapshot, opts)
	if err != nil {
		bindingLog.WithError(err).Error("reconciliation returned an unrecoverable error")
		return
	}

	bindingLog.WithFields(logrus.Fields{
		"created":      report.Created,
		"updated":      report.Updated,
		"unchanged":    report.Unchanged,
		"suspended":    report.Suspended,
		"reactivated":  report.Reactivated,
		"addedToGroup": report.AddedToGroup,
		"errorCount":   len(report.Errors),
	}).Info("reconciliation complete")

	for i, e := range report.Errors {
		if i >= maxErrorsLogged {
			break
		}
		bindingLog.Warn(e)
	}
}

// ownedBindings lists enabled "oidc" AuthenticationProvider rows and keeps
// only those whose deterministic partition hash falls in this replica's
// window.
func (d *Driver) ownedBindings(ctx context.Context) ([]models.AuthenticationProvider, error) {
	providers, err := d.store.ListEnabledAuthProviders(ctx, oidcProviderName)
	if err != nil {
		return nil, err
	}

	var owned []models.AuthenticationProvider
	for _, p := range providers {
		if d.owns(p.ID) {
			owned = append(owned, p)
		}
	}
	return owned, nil
}

// owns reports whether this replica is responsible for the given
// AuthenticationProvider ID, via a deterministic hash-mod-replicaCount
// partition (spec.md §4.D, §5).
func (d *Driver) owns(id uuid.UUID) bool {
	h := xxhash.Sum64String(id.String())
	return int(h%uint64(d.replicaCount)) == d.replicaIndex
}
