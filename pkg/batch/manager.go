// Package batch parses many simulation logs concurrently and keeps their
// summaries in a file store. Each file is an independent job: a failure or
// timeout never affects its siblings.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"gatling-report/pkg/parser"
	"gatling-report/pkg/source"
	"gatling-report/pkg/stats"
)

const (
	DefaultWorkers     = 4
	DefaultFileTimeout = 10 * time.Minute
)

// Store persists finalized summaries by ID
type Store = FileStorage[*stats.SimulationSummary]

// NewStore opens (and creates) a summary store under basePath
func NewStore(basePath string) (*Store, error) {
	return NewFileStorage[*stats.SimulationSummary](basePath)
}

// Config bounds a batch
type Config struct {
	Workers     int
	FileTimeout time.Duration
}

// Outcome is the result of one file. Result is nil whenever Err is set.
type Outcome struct {
	ID      string         `json:"id,omitempty"`
	Path    string         `json:"path"`
	Result  *parser.Result `json:"result,omitempty"`
	Err     error          `json:"-"`
	Elapsed time.Duration  `json:"elapsed"`
}

// Succeeded counts outcomes without error
func Succeeded(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Err == nil {
			n++
		}
	}
	return n
}

// Manager runs parse jobs. A nil store disables persistence.
type Manager struct {
	logger zerolog.Logger

	opener *source.Opener
	store  *Store
	opts   parser.Options
	config Config
}

func NewManager(opener *source.Opener, store *Store, config Config, opts parser.Options, logger zerolog.Logger) *Manager {
	if config.Workers < 1 {
		config.Workers = DefaultWorkers
	}
	if config.FileTimeout <= 0 {
		config.FileTimeout = DefaultFileTimeout
	}
	opts.Logger = logger
	return &Manager{
		logger: logger,
		opener: opener,
		store:  store,
		opts:   opts,
		config: config,
	}
}

// Store returns the summary store, nil when persistence is disabled
func (m *Manager) Store() *Store {
	return m.store
}

// Run parses every location with at most Workers files in flight. Outcomes
// keep the order of locations.
func (m *Manager) Run(ctx context.Context, locations []string) []Outcome {
	before, err := Snapshot(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("failed to sample process resources")
	}

	outcomes := make([]Outcome, len(locations))

	var g errgroup.Group
	g.SetLimit(m.config.Workers)
	for i, location := range locations {
		i, location := i, location
		g.Go(func() error {
			outcomes[i] = m.Parse(ctx, location, "")
			return nil
		})
	}
	_ = g.Wait()

	after, err := Snapshot(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("failed to sample process resources")
	}

	m.logger.Info().
		Int("files", len(locations)).
		Int("succeeded", Succeeded(outcomes)).
		Int("workers", m.config.Workers).
		Uint64("rss_bytes", after.RSSBytes).
		Int64("rss_delta_bytes", int64(after.RSSBytes)-int64(before.RSSBytes)).
		Float64("cpu_percent", after.CPUPercent).
		Msg("batch completed")

	return outcomes
}

// Parse runs one job under the per-file timeout. The summary is stored
// under id, or under its default ID when id is empty.
func (m *Manager) Parse(ctx context.Context, location, id string) Outcome {
	began := time.Now()
	out := Outcome{ID: id, Path: location}

	ctx, cancel := context.WithTimeout(ctx, m.config.FileTimeout)
	defer cancel()

	res, err := parser.ParseFile(ctx, m.opener, location, m.opts)
	out.Elapsed = time.Since(began)
	if err != nil {
		out.Err = fmt.Errorf("%s: %w", location, err)
		return out
	}

	if out.ID == "" {
		out.ID = res.Summary.ID()
	}
	if m.store != nil {
		if err := m.store.Save(out.ID, &res.Summary); err != nil {
			out.Err = fmt.Errorf("failed to store %s: %w", out.ID, err)
			return out
		}
		m.logger.Debug().Str("id", out.ID).Str("file", location).Msg("stored summary")
	}

	out.Result = res
	return out
}

// Get loads a stored summary
func (m *Manager) Get(id string) (*stats.SimulationSummary, error) {
	if m.store == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m.store.Load(id)
}

// List describes every stored summary
func (m *Manager) List() ([]Info, error) {
	if m.store == nil {
		return []Info{}, nil
	}
	return m.store.List()
}
