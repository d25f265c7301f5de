package aggregator

import (
	"context"
	"time"

	"github.com/contestcal/contestcal/internal/domain"
	"github.com/contestcal/contestcal/internal/logger"
	"github.com/contestcal/contestcal/internal/source"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Service runs one fetch cycle: every source in parallel, results
// merged and upserted into the contest store.
type Service interface {
	// FetchAndStore fans out to all sources and persists whatever
	// they returned. A source failure never fails the cycle; it is
	// recorded in the result and the other sources still land.
	FetchAndStore(ctx context.Context) (*domain.CycleResult, error)
}

type service struct {
	log         zerolog.Logger
	sources     []source.Source
	contestRepo domain.ContestRepo
}

func NewService(log logger.Logger, contestRepo domain.ContestRepo, sources []source.Source) Service {
	return &service{
		log:         log.With().Str("module", "aggregator").Logger(),
		sources:     sources,
		contestRepo: contestRepo,
	}
}

func (s *service) FetchAndStore(ctx context.Context) (*domain.CycleResult, error) {
	result := &domain.CycleResult{
		StartedAt: time.Now(),
		PerSource: make(map[string]int, len(s.sources)),
	}

	s.log.Info().Int("sources", len(s.sources)).Msg("Starting contest fetch cycle")

	type sourceResult struct {
		name     string
		contests []domain.Contest
		err      error
	}

	results := make([]sourceResult, len(s.sources))

	// Every source runs to completion; failures are collected, not
	// propagated, so one dead upstream cannot starve the others.
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range s.sources {
		i, src := i, src
		g.Go(func() error {
			contests, err := src.Fetch(gctx)
			results[i] = sourceResult{name: src.Name(), contests: contests, err: err}
			return nil
		})
	}
	// The workers never return errors, but context cancellation does.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, res := range results {
		if res.err != nil {
			s.log.Error().Err(res.err).Str("source", res.name).Msg("Source fetch failed")
			result.FailedSources = append(result.FailedSources, res.name)
			result.PerSource[res.name] = 0
			continue
		}

		result.PerSource[res.name] = len(res.contests)
		for _, contest := range res.contests {
			if err := s.contestRepo.Upsert(ctx, contest); err != nil {
				s.log.Error().Err(err).Str("id", contest.ID).Msg("Failed to upsert contest")
				continue
			}
			result.Upserted++
		}
	}

	result.FinishedAt = time.Now()
	s.log.Info().
		Int("upserted", result.Upserted).
		Strs("failed_sources", result.FailedSources).
		Dur("elapsed", result.FinishedAt.Sub(result.StartedAt)).
		Msg("Contest fetch cycle finished")

	return result, nil
}
