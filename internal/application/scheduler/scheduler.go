// Package scheduler drives the periodic work the game runs on: colony
// production ticks, combat round resolution, expiry sweeps, vote tallies and
// mission board refreshes per region, plus cross-region passes like stalled
// travel recovery and shard decommissioning. Several server processes may
// run at once; a database lease per region keeps them from double-ticking a
// shard.
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/infrastructure/config"
)

// LeaseStore hands out named time-bounded locks. An expired lease may be
// stolen by another holder.
type LeaseStore interface {
	Acquire(ctx context.Context, name, holder string, ttl time.Duration, now time.Time) (bool, error)
	Release(ctx context.Context, name, holder string) error
}

// RegionLister narrows the region repository to what tick planning needs.
type RegionLister interface {
	ListByStatus(ctx context.Context, status region.Status) ([]*region.Region, error)
}

// RegionJob is one unit of per-region periodic work. Run reports how many
// rows it settled.
type RegionJob struct {
	Name string
	Run  func(ctx context.Context, regionName string) (int, error)
}

// GlobalJob sweeps state that lives outside region shards.
type GlobalJob struct {
	Name string
	Run  func(ctx context.Context) (int, error)
}

// Scheduler owns the tickers. Region jobs run for every active region each
// tick; global jobs run on the slower sweep cadence under a single lease.
// Jobs run in registration order, and one job failing never stops the rest.
type Scheduler struct {
	cfg        *config.SchedulerConfig
	leases     LeaseStore
	regions    RegionLister
	regionJobs []RegionJob
	globalJobs []GlobalJob
	holder     string
	clock      shared.Clock
}

// New builds a scheduler with a process-unique lease holder id. Jobs are
// registered afterwards with AddRegionJob and AddGlobalJob.
func New(cfg *config.SchedulerConfig, leases LeaseStore, regions RegionLister, clock shared.Clock) *Scheduler {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &Scheduler{
		cfg:     cfg,
		leases:  leases,
		regions: regions,
		holder:  uuid.NewString(),
		clock:   clock,
	}
}

// AddRegionJob registers work to run for each active region every tick.
func (s *Scheduler) AddRegionJob(name string, run func(ctx context.Context, regionName string) (int, error)) {
	s.regionJobs = append(s.regionJobs, RegionJob{Name: name, Run: run})
}

// AddGlobalJob registers work to run once per sweep.
func (s *Scheduler) AddGlobalJob(name string, run func(ctx context.Context) (int, error)) {
	s.globalJobs = append(s.globalJobs, GlobalJob{Name: name, Run: run})
}

// Run blocks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	tick := time.NewTicker(s.cfg.TickInterval)
	defer tick.Stop()
	sweep := time.NewTicker(s.cfg.SweepInterval)
	defer sweep.Stop()

	log.Ctx(ctx).Info().
		Str("holder", s.holder).
		Dur("tick_interval", s.cfg.TickInterval).
		Dur("sweep_interval", s.cfg.SweepInterval).
		Int("workers", s.cfg.Workers).
		Msg("scheduler started")

	for {
		select {
		case <-ctx.Done():
			log.Ctx(ctx).Info().Msg("scheduler stopped")
			return nil
		case <-tick.C:
			if err := s.TickRegions(ctx); err != nil && ctx.Err() == nil {
				log.Ctx(ctx).Error().Err(err).Msg("region pass failed")
			}
		case <-sweep.C:
			s.Sweep(ctx)
		}
	}
}

// TickRegions runs the region jobs for every active region whose lease this
// process wins, at most Workers regions at a time. Exported so an operator
// can force a pass.
func (s *Scheduler) TickRegions(ctx context.Context) error {
	active, err := s.regions.ListByStatus(ctx, region.StatusActive)
	if err != nil {
		return err
	}
	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for _, r := range active {
		name := r.Name
		g.Go(func() error {
			s.tickRegion(ctx, name)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) tickRegion(ctx context.Context, name string) {
	lease := "tick:" + name
	ok, err := s.leases.Acquire(ctx, lease, s.holder, s.cfg.LeaseTTL, s.clock.Now())
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("region", name).Msg("tick lease lookup failed")
		return
	}
	if !ok {
		return
	}
	defer s.release(ctx, lease)

	for _, job := range s.regionJobs {
		if ctx.Err() != nil {
			return
		}
		n, err := job.Run(ctx, name)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).
				Str("region", name).
				Str("job", job.Name).
				Msg("region job failed")
			continue
		}
		if n > 0 {
			log.Ctx(ctx).Debug().
				Str("region", name).
				Str("job", job.Name).
				Int("settled", n).
				Msg("region job settled rows")
		}
	}
}

// Sweep runs the global jobs once under the shared sweep lease.
func (s *Scheduler) Sweep(ctx context.Context) {
	ok, err := s.leases.Acquire(ctx, "sweep", s.holder, s.cfg.LeaseTTL, s.clock.Now())
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("sweep lease lookup failed")
		return
	}
	if !ok {
		return
	}
	defer s.release(ctx, "sweep")

	for _, job := range s.globalJobs {
		if ctx.Err() != nil {
			return
		}
		n, err := job.Run(ctx)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("job", job.Name).Msg("sweep job failed")
			continue
		}
		if n > 0 {
			log.Ctx(ctx).Debug().Str("job", job.Name).Int("settled", n).Msg("sweep job settled rows")
		}
	}
}

// release returns a lease even when the surrounding pass was cancelled; an
// unreleased lease stalls the region until the TTL lets another holder
// steal it.
func (s *Scheduler) release(ctx context.Context, name string) {
	if err := s.leases.Release(context.WithoutCancel(ctx), name, s.holder); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("lease", name).Msg("lease not released")
	}
}
