// Package pipeline wires the trend analysis stages together: query the
// raster source, aggregate daily ensembles, join season windows, fit
// per-pixel trends, and export labeled coefficient grids.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/climatrend/climatrend/internal/aggregate"
	"github.com/climatrend/climatrend/internal/geo"
	"github.com/climatrend/climatrend/internal/grid"
	"github.com/climatrend/climatrend/internal/observability"
	"github.com/climatrend/climatrend/internal/regression"
	"github.com/climatrend/climatrend/internal/sink"
	"github.com/climatrend/climatrend/internal/source"
	"github.com/climatrend/climatrend/internal/temporal"
	"github.com/climatrend/climatrend/pkg/config"
)

// ErrNoData indicates a dataset/season combination had no source grids
// in the analysis range. The combination is skipped, not failed.
var ErrNoData = errors.New("no source grids in range")

// Status describes the pipeline's current position for the status
// endpoint.
type Status struct {
	RunID     string    `json:"run_id"`
	State     string    `json:"state"` // idle, running, done, failed
	Dataset   string    `json:"dataset,omitempty"`
	Season    string    `json:"season,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

// Pipeline orchestrates one analysis run over all configured datasets
// and seasons.
type Pipeline struct {
	src     source.RasterSource
	exp     sink.Exporter
	metrics *observability.Metrics
	logger  *zap.SugaredLogger
	cfg     *config.ConfigData
	region  geo.Region
	opts    regression.EngineOptions

	mu     sync.Mutex
	status Status
}

// New builds a pipeline from its collaborators and validates the
// configuration up front, so misconfiguration fails before any
// aggregation work starts.
func New(src source.RasterSource, exp sink.Exporter, metrics *observability.Metrics,
	logger *zap.SugaredLogger, cfg *config.ConfigData) (*Pipeline, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	region := geo.Region{BufferM: cfg.Region.BufferM}
	for _, pt := range cfg.Region.Points {
		region.Polygon = append(region.Polygon, geo.Point{X: pt.X, Y: pt.Y})
	}
	if err := region.Validate(); err != nil {
		return nil, err
	}

	return &Pipeline{
		src:     src,
		exp:     exp,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		region:  region,
		opts: regression.EngineOptions{
			TileRows: cfg.Analysis.TileRows,
			Workers:  cfg.Analysis.Workers,
		},
		status: Status{State: "idle"},
	}, nil
}

// Status returns a snapshot of the pipeline's progress.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Pipeline) setStatus(update func(*Status)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	update(&p.status)
}

// Run executes the full analysis: every configured dataset crossed with
// every configured season. Configuration errors abort the run;
// dataset/season combinations without data are skipped.
func (p *Pipeline) Run(ctx context.Context) error {
	runID := uuid.New().String()
	start, end, err := p.cfg.Analysis.DateRange()
	if err != nil {
		return err
	}

	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)
	p.setStatus(func(s *Status) {
		*s = Status{RunID: runID, State: "running", StartedAt: time.Now().UTC()}
	})

	p.logger.Infof("run %s: %d datasets, %d seasons, %s to %s",
		runID, len(p.cfg.Datasets), len(p.cfg.Analysis.Seasons),
		start.Format("2006-01-02"), end.Format("2006-01-02"))

	for _, ds := range p.cfg.Datasets {
		for _, sd := range p.cfg.Analysis.Seasons {
			if err := ctx.Err(); err != nil {
				return err
			}
			season := temporal.SeasonDefinition{
				Name:           sd.Name,
				StartMonth:     sd.StartMonth,
				DurationMonths: sd.DurationMonths,
			}
			p.setStatus(func(s *Status) {
				s.Dataset = ds.ID
				s.Season = season.Name
			})

			labeled, err := p.SeasonTrend(ctx, ds, season, start, end)
			if errors.Is(err, ErrNoData) {
				p.metrics.SeasonRunsTotal.WithLabelValues("skipped").Inc()
				p.logger.Warnf("dataset %s season %s: no data, skipping", ds.ID, season.Name)
				continue
			}
			if err != nil {
				p.metrics.SeasonRunsTotal.WithLabelValues("error").Inc()
				p.setStatus(func(s *Status) { s.State = "failed" })
				return fmt.Errorf("dataset %s season %s: %w", ds.ID, season.Name, err)
			}

			name := fmt.Sprintf("%s%s_%s_trend", p.cfg.Export.NamePrefix, ds.ID, season.Name)
			ref := grid.SpatialRef{Projection: ds.Projection, ResolutionM: ds.ResolutionM}
			if err := p.exp.Export(ctx, labeled, p.region, ds.ResolutionM, ref, name); err != nil {
				p.metrics.StageErrors.WithLabelValues("export").Inc()
				p.setStatus(func(s *Status) { s.State = "failed" })
				return fmt.Errorf("exporting %s: %w", name, err)
			}
			p.metrics.ExportsTotal.Inc()
			p.metrics.SeasonRunsTotal.WithLabelValues("ok").Inc()
		}
	}

	p.setStatus(func(s *Status) {
		s.State = "done"
		s.Dataset = ""
		s.Season = ""
	})
	p.logger.Infof("run %s complete", runID)
	return nil
}

// SeasonTrend computes the labeled coefficient grid for one dataset and
// season: daily ensemble means per scenario, seasonal means per anchor
// year, then the per-pixel regression.
func (p *Pipeline) SeasonTrend(ctx context.Context, ds config.DatasetData,
	season temporal.SeasonDefinition, start, end time.Time) (*grid.Grid, error) {

	col, err := p.src.Query(ctx, ds.ID, ds.Bands, start, end)
	if err != nil {
		p.metrics.StageErrors.WithLabelValues("query").Inc()
		return nil, err
	}
	if col.Len() == 0 {
		return nil, ErrNoData
	}
	p.metrics.GridsQueried.Add(float64(col.Len()))

	dailies, err := p.dailyEnsembles(col, ds.Scenarios)
	if err != nil {
		p.metrics.StageErrors.WithLabelValues("aggregate").Inc()
		return nil, err
	}

	samples, err := p.seasonalSamples(dailies, season, start, end)
	if err != nil {
		p.metrics.StageErrors.WithLabelValues("aggregate").Inc()
		return nil, err
	}

	fitStart := time.Now()
	coeff, err := regression.FitTrends(ctx, samples, p.opts)
	if err != nil {
		p.metrics.StageErrors.WithLabelValues("fit").Inc()
		return nil, err
	}
	p.metrics.FitDuration.Observe(time.Since(fitStart).Seconds())
	p.metrics.SamplesPerFit.Observe(float64(len(samples)))
	p.metrics.PixelFits.Add(float64(coeff.Extent().Pixels() * len(samples[0].Responses)))

	labeled, err := regression.LabelCoefficients(coeff, regression.Predictors(), samples[0].Responses)
	if err != nil {
		p.metrics.StageErrors.WithLabelValues("fit").Inc()
		return nil, err
	}

	p.logger.Debugf("dataset %s season %s: %d source grids, %d daily aggregates, %d yearly samples",
		ds.ID, season.Name, col.Len(), dailies.Len(), len(samples))

	return labeled, nil
}

// dailyEnsembles reduces the collection to one grid per calendar day:
// the pixelwise mean per scenario tag, concatenated band-wise. Each
// daily grid is timestamped at UTC midnight of its day so later stages
// see a regular axis.
func (p *Pipeline) dailyEnsembles(col *grid.Collection, scenarios []string) (*grid.Collection, error) {
	byDay := col.GroupByDay()

	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	suffixFor := func(tag string) string {
		if tag == "" {
			return ""
		}
		return "_" + tag
	}

	dailies := make([]*grid.Grid, 0, len(days))
	for _, day := range days {
		agg, err := aggregate.ReducePerScenario(byDay[day], scenarios, aggregate.StatMean, suffixFor)
		if err != nil {
			return nil, fmt.Errorf("day %s: %w", day, err)
		}
		midnight, err := time.ParseInLocation(grid.DayKeyFormat, day, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("day key %q: %w", day, err)
		}
		dailies = append(dailies, agg.WithTimestamp(midnight))
		p.metrics.DailyAggregates.Inc()
	}

	return grid.NewCollection(dailies...)
}

// seasonalSamples joins the daily aggregates onto anchor years through
// the season window, reduces each year to its seasonal mean, and
// attaches the regression predictors. An anchor year without data
// yields an all-no-data sample so the fit sees it as unusable rather
// than absent.
func (p *Pipeline) seasonalSamples(dailies *grid.Collection, season temporal.SeasonDefinition,
	start, end time.Time) ([]regression.Sample, error) {

	years := temporal.AnchorYears(season, start, end)
	joined, err := temporal.JoinSeason(dailies, season, years)
	if err != nil {
		return nil, err
	}

	template := dailies.Grids()[0]
	suffix := "_mean_" + season.Name

	samples := make([]regression.Sample, 0, len(years))
	for _, year := range years {
		group := joined[year]
		var agg *grid.Grid
		if group.Len() == 0 {
			agg, err = aggregate.EmptyLike(template.Ref(), template.Extent(),
				season.WindowStart(year), template.BandNames(), suffix)
		} else {
			agg, err = aggregate.Reduce(group.Grids(), aggregate.StatMean, suffix)
		}
		if err != nil {
			return nil, fmt.Errorf("season %s year %d: %w", season.Name, year, err)
		}
		p.metrics.SeasonAggregates.Inc()

		agg = agg.WithTimestamp(season.WindowStart(year)).WithYear(year)
		sample, err := regression.AttachPredictors(agg)
		if err != nil {
			return nil, fmt.Errorf("season %s year %d: %w", season.Name, year, err)
		}
		samples = append(samples, sample)
	}

	return samples, nil
}
