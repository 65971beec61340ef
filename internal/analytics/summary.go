package analytics

import (
	"context"
	"fmt"
	"math"

	"github.com/ziadkadry99/chaxai/internal/db"
)

// Count is a labelled tally.
type Count struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Day is one point of the daily trend.
type Day struct {
	Date     string `json:"date"`
	Requests int    `json:"requests"`
	Queries  int    `json:"queries"`
	Errors   int    `json:"errors"`
}

// Summary aggregates the analytics of the last Days days.
type Summary struct {
	Days            int     `json:"days"`
	TotalRequests   int     `json:"total_requests"`
	TotalQueries    int     `json:"total_queries"`
	ErrorRate       float64 `json:"error_rate"`
	AvgResponseMS   float64 `json:"avg_response_ms"`
	AvgProcessingMS float64 `json:"avg_processing_ms"`
	AvgConfidence   float64 `json:"avg_confidence"`
	AvgSources      float64 `json:"avg_sources"`
	CacheHitRate    float64 `json:"cache_hit_rate"`
	TopEndpoints    []Count `json:"top_endpoints"`
	TopModels       []Count `json:"top_models"`
	DailyTrend      []Day   `json:"daily_trend"`
}

const topN = 5

// Summary computes usage and query statistics for the last days days.
func (s *Store) Summary(ctx context.Context, days int) (*Summary, error) {
	if days <= 0 {
		days = 30
	}
	since := db.FormatTime(s.now().AddDate(0, 0, -days))
	sum := &Summary{Days: days, TopEndpoints: []Count{}, TopModels: []Count{}, DailyTrend: []Day{}}

	var errs int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status_code >= 400 THEN 1 ELSE 0 END), 0),
		       COALESCE(AVG(duration_ms), 0)
		FROM api_usage WHERE timestamp >= ?`, since,
	).Scan(&sum.TotalRequests, &errs, &sum.AvgResponseMS)
	if err != nil {
		return nil, fmt.Errorf("summarising api usage: %w", err)
	}
	if sum.TotalRequests > 0 {
		sum.ErrorRate = round(float64(errs) / float64(sum.TotalRequests))
	}

	var cached int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(AVG(processing_ms), 0),
		       COALESCE(AVG(confidence), 0),
		       COALESCE(AVG(sources_count), 0),
		       COALESCE(SUM(cached), 0)
		FROM query_log WHERE timestamp >= ?`, since,
	).Scan(&sum.TotalQueries, &sum.AvgProcessingMS, &sum.AvgConfidence, &sum.AvgSources, &cached)
	if err != nil {
		return nil, fmt.Errorf("summarising queries: %w", err)
	}
	if sum.TotalQueries > 0 {
		sum.CacheHitRate = round(float64(cached) / float64(sum.TotalQueries))
	}
	sum.AvgResponseMS = round(sum.AvgResponseMS)
	sum.AvgProcessingMS = round(sum.AvgProcessingMS)
	sum.AvgConfidence = round(sum.AvgConfidence)
	sum.AvgSources = round(sum.AvgSources)

	if sum.TopEndpoints, err = s.top(ctx, "SELECT endpoint, COUNT(*) AS n FROM api_usage WHERE timestamp >= ? GROUP BY endpoint ORDER BY n DESC, endpoint LIMIT ?", since); err != nil {
		return nil, err
	}
	if sum.TopModels, err = s.top(ctx, "SELECT model, COUNT(*) AS n FROM query_log WHERE timestamp >= ? AND model != '' GROUP BY model ORDER BY n DESC, model LIMIT ?", since); err != nil {
		return nil, err
	}
	if sum.DailyTrend, err = s.daily(ctx, since); err != nil {
		return nil, err
	}
	return sum, nil
}

func (s *Store) top(ctx context.Context, query, since string) ([]Count, error) {
	rows, err := s.db.QueryContext(ctx, query, since, topN)
	if err != nil {
		return nil, fmt.Errorf("querying top counts: %w", err)
	}
	defer rows.Close()

	out := []Count{}
	for rows.Next() {
		var c Count
		if err := rows.Scan(&c.Name, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// daily merges per-day request and query counts, oldest day first.
func (s *Store) daily(ctx context.Context, since string) ([]Day, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT day, SUM(requests), SUM(queries), SUM(errors) FROM (
			SELECT substr(timestamp, 1, 10) AS day, 1 AS requests, 0 AS queries,
			       CASE WHEN status_code >= 400 THEN 1 ELSE 0 END AS errors
			FROM api_usage WHERE timestamp >= ?
			UNION ALL
			SELECT substr(timestamp, 1, 10), 0, 1, 0
			FROM query_log WHERE timestamp >= ?
		)
		GROUP BY day ORDER BY day`, since, since)
	if err != nil {
		return nil, fmt.Errorf("querying daily trend: %w", err)
	}
	defer rows.Close()

	out := []Day{}
	for rows.Next() {
		var d Day
		if err := rows.Scan(&d.Date, &d.Requests, &d.Queries, &d.Errors); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func round(v float64) float64 {
	return math.Round(v*100) / 100
}
