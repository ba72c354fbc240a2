// Package scheduler runs script commands after a delay, once.
package scheduler

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/FUFSoB/cli-bot-discord/internal/shellerr"
	"github.com/FUFSoB/cli-bot-discord/pkg/jobmgr"
)

// Origin is where a job was scheduled from. The job runs as if invoked there.
type Origin struct {
	UserID    string `json:"user_id"`
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

// Job is one scheduled command.
type Job struct {
	ID      string    `json:"id"`
	FireAt  time.Time `json:"fire_at"`
	Command string    `json:"command"`
	Origin  Origin    `json:"origin"`
}

// Runner executes a fired job.
type Runner func(ctx context.Context, job Job) error

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Store persists pending jobs across restarts.
type Store interface {
	SaveJob(job Job) error
	DeleteJob(id string) error
	PendingJobs() ([]Job, error)
}

// Option configures a scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option { return func(s *Scheduler) { s.clock = c } }

// WithStore persists jobs.
func WithStore(st Store) Option { return func(s *Scheduler) { s.store = st } }

// WithManager runs job waits on a shared job manager.
func WithManager(m *jobmgr.Manager) Option { return func(s *Scheduler) { s.jobs = m } }

// Scheduler fires jobs after their delay.
type Scheduler struct {
	runner Runner
	clock  Clock
	store  Store
	jobs   *jobmgr.Manager

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[string]Job
}

// New returns a scheduler that hands fired jobs to runner.
func New(runner Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner:  runner,
		clock:   realClock{},
		pending: make(map[string]Job),
	}
	for _, o := range opts {
		o(s)
	}
	if s.jobs == nil {
		s.jobs = jobmgr.NewManager(func(msg string) {
			log.Debug().Str("status", msg).Msg("Scheduled job")
		})
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Schedule registers command to run after d.
func (s *Scheduler) Schedule(d time.Duration, command string, origin Origin) (Job, error) {
	if d <= 0 {
		return Job{}, shellerr.New(shellerr.SchedulingError, "schedule: delay must be positive, got %s", d)
	}
	if strings.TrimSpace(command) == "" {
		return Job{}, shellerr.New(shellerr.SchedulingError, "schedule: empty command")
	}
	if s.ctx.Err() != nil {
		return Job{}, shellerr.New(shellerr.SchedulingError, "schedule: scheduler is closed")
	}

	job := Job{
		ID:      uuid.NewString(),
		FireAt:  s.clock.Now().Add(d),
		Command: command,
		Origin:  origin,
	}
	if s.store != nil {
		if err := s.store.SaveJob(job); err != nil {
			return Job{}, shellerr.Wrap(shellerr.SchedulingError, err, "schedule: persist job")
		}
	}
	if err := s.start(job); err != nil {
		return Job{}, err
	}

	log.Info().
		Str("job", job.ID).
		Time("fire_at", job.FireAt).
		Str("guild", origin.GuildID).
		Msg("Job scheduled")
	return job, nil
}

// Restore starts every persisted job. Overdue jobs fire at once.
func (s *Scheduler) Restore(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	jobs, err := s.store.PendingJobs()
	if err != nil {
		return 0, shellerr.Wrap(shellerr.SchedulingError, err, "restore jobs")
	}
	n := 0
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		s.mu.Lock()
		_, known := s.pending[job.ID]
		s.mu.Unlock()
		if known {
			continue
		}
		if err := s.start(job); err != nil {
			log.Warn().Err(err).Str("job", job.ID).Msg("Failed to restore job")
			continue
		}
		n++
	}
	log.Info().Int("jobs", n).Msg("Scheduled jobs restored")
	return n, nil
}

func (s *Scheduler) start(job Job) error {
	s.mu.Lock()
	s.pending[job.ID] = job
	s.mu.Unlock()

	err := s.jobs.StartAsync(s.ctx, job.ID, func(ctx context.Context) error {
		if wait := job.FireAt.Sub(s.clock.Now()); wait > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-s.clock.After(wait):
			}
		}
		return s.fire(ctx, job)
	})
	if err != nil {
		s.mu.Lock()
		delete(s.pending, job.ID)
		s.mu.Unlock()
		return shellerr.Wrap(shellerr.SchedulingError, err, "schedule")
	}
	return nil
}

func (s *Scheduler) fire(ctx context.Context, job Job) error {
	s.mu.Lock()
	delete(s.pending, job.ID)
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.DeleteJob(job.ID); err != nil {
			log.Warn().Err(err).Str("job", job.ID).Msg("Failed to delete fired job")
		}
	}

	log.Info().Str("job", job.ID).Str("command", job.Command).Msg("Job fired")
	if err := s.runner(ctx, job); err != nil {
		log.Error().Err(err).Str("job", job.ID).Msg("Scheduled job failed")
		return err
	}
	return nil
}

// Pending returns jobs that have not fired yet, soonest first.
func (s *Scheduler) Pending() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.pending))
	for _, j := range s.pending {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].FireAt.Before(out[k].FireAt) })
	return out
}

// Close cancels every wait and blocks until running jobs return. Persisted
// jobs stay in the store for the next Restore.
func (s *Scheduler) Close() {
	s.cancel()
	s.jobs.Wait()
}
