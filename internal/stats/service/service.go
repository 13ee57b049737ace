package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"lead_rotation_backend/internal/stats/repository"
	"lead_rotation_backend/platform/apperr"
	"lead_rotation_backend/platform/config"
	"lead_rotation_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	cachePrefix    = "rotation:stats:"
	computeTimeout = 30 * time.Second
)

// Summary is the aggregated view of a tenant's assignment log.
type Summary struct {
	Totals      repository.Counts         `json:"totals"`
	ByVendor    []repository.VendorCounts `json:"byVendor"`
	ByOrigin    []repository.OriginCounts `json:"byOrigin"`
	Timezone    string                    `json:"timezone"`
	GeneratedAt time.Time                 `json:"generatedAt"`
}

// Service computes summaries and caches them per tenant generation.
type Service struct {
	reader repository.Reader
	cache  Cache
	cfg    config.StatsConfig
	log    *logger.Logger
	group  singleflight.Group
	now    func() time.Time
}

// New creates a Service. cache may be nil.
func New(reader repository.Reader, cache Cache, cfg config.StatsConfig, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{reader: reader, cache: cache, cfg: cfg, log: log, now: time.Now}
}

// WindowBounds returns the starts of today, the ISO week (Monday) and the
// month containing now, in loc.
func WindowBounds(now time.Time, loc *time.Location) repository.Bounds {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	y, m, d := local.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, loc)
	sinceMonday := (int(day.Weekday()) + 6) % 7
	return repository.Bounds{
		DayStart:   day,
		WeekStart:  day.AddDate(0, 0, -sinceMonday),
		MonthStart: time.Date(y, m, 1, 0, 0, 0, 0, loc),
	}
}

// Summarize counts assignments by vendor and origin.
func (s *Service) Summarize(ctx context.Context, tenantID uuid.UUID, f repository.Filter) (Summary, error) {
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return Summary{}, apperr.Validation("from must be before to").WithCode("invalid_input")
	}

	loc := s.cfg.GetStatsLocation()
	bounds := WindowBounds(s.now(), loc)

	key, cacheable := s.cacheKey(ctx, tenantID, f, bounds)
	if cacheable {
		if raw, ok, err := s.cache.Get(ctx, key); err != nil {
			s.log.WithContext(ctx).Warn("stats cache read failed", "error", err)
		} else if ok {
			var cached Summary
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
		}
	}

	flightKey := key
	if !cacheable {
		flightKey = tenantID.String() + "|" + filterKey(f, bounds)
	}
	// The shared computation outlives any single caller; each caller only
	// stops waiting when its own context ends.
	ch := s.group.DoChan(flightKey, func() (any, error) {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), computeTimeout)
		defer cancel()
		return s.compute(cctx, tenantID, f, bounds, loc)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return Summary{}, apperr.Wrap(apperr.KindUnavailable, "statistics request cancelled", ctx.Err()).WithOp("Summarize")
	case res = <-ch:
	}
	if res.Err != nil {
		s.log.WithContext(ctx).DatabaseError("stats.summarize", res.Err)
		return Summary{}, apperr.Wrap(apperr.KindInternal, "failed to load assignment statistics", res.Err).WithOp("Summarize")
	}
	summary := res.Val.(Summary)

	if cacheable {
		if raw, err := json.Marshal(summary); err == nil {
			if err := s.cache.Set(ctx, key, raw, s.cfg.GetStatsCacheTTL()); err != nil {
				s.log.WithContext(ctx).Warn("stats cache write failed", "error", err)
			}
		}
	}
	return summary, nil
}

func (s *Service) compute(ctx context.Context, tenantID uuid.UUID, f repository.Filter, b repository.Bounds, loc *time.Location) (Summary, error) {
	var (
		byVendor []repository.VendorCounts
		byOrigin []repository.OriginCounts
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		byVendor, err = s.reader.CountByVendor(gctx, tenantID, f, b)
		return err
	})
	g.Go(func() error {
		var err error
		byOrigin, err = s.reader.CountByOrigin(gctx, tenantID, f, b)
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	var totals repository.Counts
	for _, vc := range byVendor {
		totals.Add(vc.Counts)
	}
	if byVendor == nil {
		byVendor = []repository.VendorCounts{}
	}
	if byOrigin == nil {
		byOrigin = []repository.OriginCounts{}
	}

	return Summary{
		Totals:      totals,
		ByVendor:    byVendor,
		ByOrigin:    byOrigin,
		Timezone:    loc.String(),
		GeneratedAt: s.now().UTC(),
	}, nil
}

// Invalidate drops every cached summary of the tenant by advancing its
// generation.
func (s *Service) Invalidate(ctx context.Context, tenantID uuid.UUID) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Bump(ctx, versionKey(tenantID))
}

func (s *Service) cacheKey(ctx context.Context, tenantID uuid.UUID, f repository.Filter, b repository.Bounds) (string, bool) {
	if s.cache == nil || s.cfg.GetStatsCacheTTL() <= 0 {
		return "", false
	}
	version, err := s.cache.Version(ctx, versionKey(tenantID))
	if err != nil {
		s.log.WithContext(ctx).Warn("stats cache version read failed", "error", err)
		return "", false
	}
	return fmt.Sprintf("%s%s:v%d:%s", cachePrefix, tenantID, version, filterKey(f, b)), true
}

func versionKey(tenantID uuid.UUID) string {
	return cachePrefix + tenantID.String() + ":version"
}

func filterKey(f repository.Filter, b repository.Bounds) string {
	parts := []string{fmt.Sprintf("d%d", b.DayStart.Unix())}
	if f.VendorID != nil {
		parts = append(parts, "v="+f.VendorID.String())
	}
	if f.PipelineID != nil {
		parts = append(parts, "p="+f.PipelineID.String())
	}
	if f.Origin != nil {
		parts = append(parts, "o="+*f.Origin)
	}
	if f.From != nil {
		parts = append(parts, fmt.Sprintf("f=%d", f.From.Unix()))
	}
	if f.To != nil {
		parts = append(parts, fmt.Sprintf("t=%d", f.To.Unix()))
	}
	return strings.Join(parts, "|")
}
