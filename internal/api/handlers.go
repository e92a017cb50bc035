package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/baxromumarov/job-market-analytics/internal/analytics"
	"github.com/baxromumarov/job-market-analytics/internal/observability"
	"github.com/baxromumarov/job-market-analytics/internal/store"
)

func (s *Server) handleListPostings(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r, 50)
	filter := parseFilter(r)

	rows, err := s.postings.ListRecent(r.Context(), store.DefaultRecentLimit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch postings: "+err.Error())
		return
	}
	rows = filter.Apply(rows)

	total := len(rows)
	page := []store.PostingRow{}
	if offset < total {
		end := min(offset+limit, total)
		page = rows[offset:end]
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items":  page,
		"limit":  limit,
		"offset": offset,
		"total":  total,
	})
}

// handleStats reports the counters of this process only. Ingest runs are
// separate processes and print their own stats line.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, observability.Snapshot())
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	s.withReport(w, r, func(rep analytics.Report) interface{} { return rep })
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	s.withReport(w, r, func(rep analytics.Report) interface{} { return rep.Overview })
}

func (s *Server) handleRoles(w http.ResponseWriter, r *http.Request) {
	s.withReport(w, r, func(rep analytics.Report) interface{} {
		return map[string]interface{}{"items": nonNil(rep.TopRoles)}
	})
}

func (s *Server) handleSkills(w http.ResponseWriter, r *http.Request) {
	s.withReport(w, r, func(rep analytics.Report) interface{} {
		return map[string]interface{}{"items": nonNil(rep.TopSkills)}
	})
}

func (s *Server) handleSalary(w http.ResponseWriter, r *http.Request) {
	s.withReport(w, r, func(rep analytics.Report) interface{} {
		return map[string]interface{}{"bins": nonNil(rep.SalaryHistogram)}
	})
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	s.withReport(w, r, func(rep analytics.Report) interface{} {
		return map[string]interface{}{"items": nonNil(rep.Trend)}
	})
}

func (s *Server) withReport(w http.ResponseWriter, r *http.Request, view func(analytics.Report) interface{}) {
	opts := parseOptions(r)
	rep, err := s.report(r.Context(), opts)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to build report: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, view(rep))
}

// report serves from the cache when possible. Cache failures only cost a
// recomputation.
func (s *Server) report(ctx context.Context, opts analytics.Options) (analytics.Report, error) {
	key := reportKey(opts)
	if s.cache != nil {
		var cached analytics.Report
		ok, err := s.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("report cache read failed")
		} else if ok {
			return cached, nil
		}
	}

	rows, err := s.postings.ListRecent(ctx, store.DefaultRecentLimit)
	if err != nil {
		return analytics.Report{}, err
	}
	rep := analytics.Build(rows, opts)

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, rep); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("report cache write failed")
		}
	}
	return rep, nil
}

func reportKey(opts analytics.Options) string {
	v := url.Values{}
	v.Set("title", opts.Filter.TitleContains)
	v.Set("company", opts.Filter.CompanyContains)
	v.Set("remote", string(opts.Filter.Remote))
	v.Set("top", strconv.Itoa(opts.TopRoles))
	v.Set("skills", strconv.Itoa(opts.TopSkills))
	v.Set("bins", strconv.Itoa(opts.Bins))
	return "report:" + v.Encode()
}

func parseFilter(r *http.Request) analytics.Filter {
	q := r.URL.Query()
	return analytics.Filter{
		TitleContains:   q.Get("title"),
		CompanyContains: q.Get("company"),
		Remote:          analytics.ParseRemoteFilter(q.Get("remote")),
	}
}

func parseOptions(r *http.Request) analytics.Options {
	q := r.URL.Query()
	return analytics.Options{
		Filter:    parseFilter(r),
		TopRoles:  clampInt(q.Get("top"), analytics.DefaultTopRoles, 3, 100),
		TopSkills: clampInt(q.Get("skills"), analytics.DefaultTopSkills, 1, 100),
		Bins:      clampInt(q.Get("bins"), analytics.DefaultBins, 1, 200),
	}
}

func clampInt(raw string, def, lo, hi int) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return max(lo, min(n, hi))
}

func parsePagination(r *http.Request, defaultLimit int) (int, int) {
	q := r.URL.Query()
	limit := defaultLimit
	offset := 0

	if v := q.Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}

	if v := q.Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}

	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
