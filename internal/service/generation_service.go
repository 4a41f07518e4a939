package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

var (
	ErrMissingTitle    = errors.New("missing product title")
	ErrMissingKeywords = errors.New("missing keywords")
)

// GenerationService is the gate in front of the copy generator: it
// validates input, enforces the daily quota, calls the provider and
// records the result in the usage ledger.
type GenerationService interface {
	Generate(ctx context.Context, userID, title string, keywords []string) (*model.Generation, error)
	ListRecent(ctx context.Context, userID string, limit int) ([]model.Generation, error)
	Usage(ctx context.Context, userID string) (*model.UserUsage, error)
}

type generationService struct {
	generationRepo  repository.GenerationRepository
	entitlementRepo repository.EntitlementRepository
	generator       CopyGenerator
	dailyLimit      int
	now             func() time.Time
	logger          zerolog.Logger
}

// NewGenerationService creates a new GenerationService with a scoped logger.
func NewGenerationService(
	generationRepo repository.GenerationRepository,
	entitlementRepo repository.EntitlementRepository,
	generator CopyGenerator,
	dailyLimit int,
	logger zerolog.Logger,
) GenerationService {
	return &generationService{
		generationRepo:  generationRepo,
		entitlementRepo: entitlementRepo,
		generator:       generator,
		dailyLimit:      dailyLimit,
		now:             time.Now,
		logger:          logger.With().Str("service", "GenerationService").Logger(),
	}
}

// NormalizeKeywords splits comma-separated input, trims whitespace and
// drops empty entries. Already-split keyword lists pass through the same
// trimming.
func NormalizeKeywords(keywords []string) []string {
	var out []string
	for _, k := range keywords {
		for _, part := range strings.Split(k, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (s *generationService) Generate(ctx context.Context, userID, title string, keywords []string) (*model.Generation, error) {
	title = strings.TrimSpace(title)
	keywords = NormalizeKeywords(keywords)
	if title == "" {
		return nil, ErrMissingTitle
	}
	if len(keywords) == 0 {
		return nil, ErrMissingKeywords
	}

	entitlement, err := s.entitlementRepo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading entitlement: %w", err)
	}

	start, end := DayBounds(s.now())
	todayCount, err := s.generationRepo.CountBetween(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("loading usage count: %w", err)
	}

	if decision := EvaluateQuota(entitlement.IsPro, todayCount, s.dailyLimit); !decision.Allowed {
		return nil, &QuotaExceededError{DailyLimit: s.dailyLimit}
	}

	// Free users hold a ledger slot before the provider call. The
	// reservation repeats the count check inside a serializable
	// transaction, so two concurrent requests cannot both pass it.
	var reservationID string
	if !entitlement.IsPro {
		reservationID, err = s.generationRepo.ReserveDailySlot(ctx, userID, title, keywords, start, end, s.dailyLimit)
		if err != nil {
			if errors.Is(err, repository.ErrDailyLimitExceeded) {
				return nil, &QuotaExceededError{DailyLimit: s.dailyLimit}
			}
			return nil, fmt.Errorf("reserving generation slot: %w", err)
		}
	}

	output, err := s.generator.GenerateCopy(ctx, title, keywords)
	if err != nil {
		if reservationID != "" {
			// Failed generations do not consume quota.
			if releaseErr := s.generationRepo.ReleaseReservation(ctx, reservationID); releaseErr != nil {
				s.logger.Error().Err(releaseErr).Str("user_id", userID).Msg("Failed to release generation slot")
			}
		}
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Copy generation failed")
		return nil, fmt.Errorf("generating copy: %w", err)
	}

	generation := &model.Generation{
		ID:             reservationID,
		UserID:         userID,
		ProductTitle:   title,
		Keywords:       keywords,
		OutputMarkdown: output,
		CreatedAt:      s.now(),
	}

	// The provider call already succeeded, so a ledger failure is logged
	// and the content still returned to the caller.
	if reservationID != "" {
		if err := s.generationRepo.CompleteReservation(ctx, reservationID, output); err != nil {
			s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to record generation output")
		}
	} else {
		if err := s.generationRepo.Insert(ctx, generation); err != nil {
			s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to record generation")
		}
	}

	return generation, nil
}

func (s *generationService) ListRecent(ctx context.Context, userID string, limit int) ([]model.Generation, error) {
	generations, err := s.generationRepo.ListRecent(ctx, userID, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to list generations")
		return nil, err
	}
	return generations, nil
}

func (s *generationService) Usage(ctx context.Context, userID string) (*model.UserUsage, error) {
	entitlement, err := s.entitlementRepo.Get(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to load entitlement")
		return nil, err
	}
	start, end := DayBounds(s.now())
	todayCount, err := s.generationRepo.CountBetween(ctx, userID, start, end)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to load usage count")
		return nil, err
	}
	return &model.UserUsage{
		UserID:     userID,
		IsPro:      entitlement.IsPro,
		TodayCount: todayCount,
		DailyLimit: s.dailyLimit,
	}, nil
}
