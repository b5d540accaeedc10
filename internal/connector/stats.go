package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/graaaaa/eventhub/internal/config"
	"github.com/graaaaa/eventhub/internal/event"
)

// StatisticsFetcher loads the yearly arts statistics from data.gov.sg
// datastore_search resources and groups them by year.
type StatisticsFetcher struct {
	cfg     config.StatisticsConfig
	fetcher *Fetcher
	logger  *slog.Logger
}

// NewStatisticsFetcher creates a StatisticsFetcher.
func NewStatisticsFetcher(cfg config.StatisticsConfig, f *Fetcher, logger *slog.Logger) *StatisticsFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatisticsFetcher{cfg: cfg, fetcher: f, logger: logger.With("source", "statistics")}
}

// record is one datastore row. data.gov.sg serves numbers as strings.
type record map[string]any

func (r record) str(key string) string {
	switch v := r[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (r record) year() (int, bool) {
	y, err := strconv.Atoi(r.str("year"))
	return y, err == nil && y > 0
}

func (r record) float(key string) (float64, bool) {
	f, err := strconv.ParseFloat(r.str(key), 64)
	return f, err == nil
}

// Fetch returns one Statistics per year, ordered by year. A resource that
// cannot be fetched contributes nothing; rows with an unparseable year or
// amount are skipped.
func (s *StatisticsFetcher) Fetch(ctx context.Context) []event.Statistics {
	byYear := make(map[int]*event.Statistics)
	get := func(year int) *event.Statistics {
		st, ok := byYear[year]
		if !ok {
			st = &event.Statistics{
				Year:             year,
				GovContributions: []event.GovContribution{},
				EmploymentItems:  []event.EmploymentItem{},
				Activities:       []event.ActivityCount{},
			}
			byYear[year] = st
		}
		return st
	}

	for _, r := range s.records(ctx, "government_contribution", s.cfg.GovernmentContribution) {
		year, ok := r.year()
		amount, okAmount := r.float("amount")
		if !ok || !okAmount {
			continue
		}
		st := get(year)
		st.GovContributions = append(st.GovContributions, event.GovContribution{
			Type:      r.str("contributiontype"),
			AmountMil: amount,
		})
	}

	for _, r := range s.records(ctx, "employment_item", s.cfg.EmploymentItem) {
		year, ok := r.year()
		if !ok {
			continue
		}
		n, err := strconv.Atoi(r.str("employment"))
		if err != nil {
			continue
		}
		st := get(year)
		st.EmploymentItems = append(st.EmploymentItems, event.EmploymentItem{
			ArtForm:    r.str("artform"),
			Employment: n,
		})
	}

	for _, r := range s.records(ctx, "activities", s.cfg.Activities) {
		year, ok := r.year()
		if !ok {
			continue
		}
		n, err := strconv.Atoi(r.str("number"))
		if err != nil {
			continue
		}
		st := get(year)
		st.Activities = append(st.Activities, event.ActivityCount{
			Type:   r.str("type"),
			Number: n,
		})
	}

	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	slices.Sort(years)

	out := make([]event.Statistics, 0, len(years))
	for _, y := range years {
		out = append(out, *byYear[y])
	}
	return out
}

func (s *StatisticsFetcher) records(ctx context.Context, name, resourceID string) []record {
	if resourceID == "" {
		return nil
	}
	u, err := url.Parse(s.cfg.BaseURL)
	if err != nil {
		s.logger.Warn("invalid statistics base url", "error", err)
		return nil
	}
	q := u.Query()
	q.Set("resource_id", resourceID)
	u.RawQuery = q.Encode()

	body, err := s.fetcher.GetWithRetry(ctx, u.String())
	if err != nil {
		s.logger.Warn("statistics resource unavailable", "resource", name, "error", err)
		return nil
	}

	var resp struct {
		Result struct {
			Records []record `json:"records"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		s.logger.Warn("statistics resource is malformed", "resource", name, "error", err)
		return nil
	}
	s.logger.Info("fetched statistics", "resource", name, "records", len(resp.Result.Records))
	return resp.Result.Records
}
