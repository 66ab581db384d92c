package categorizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fjacquet/ledger-sync/internal/confidence"
	"fjacquet/ledger-sync/internal/config"
	"fjacquet/ledger-sync/internal/history"
	"fjacquet/ledger-sync/internal/logging"
	"fjacquet/ledger-sync/internal/models"
	"fjacquet/ledger-sync/internal/redact"
	"fjacquet/ledger-sync/internal/retry"
	"fjacquet/ledger-sync/internal/store"
	"fjacquet/ledger-sync/internal/txerror"
)

const (
	operationCategorize = "ai.categorize"
	// candidateFactor widens the merchant query so that scoring, not recency,
	// decides which matches are kept.
	candidateFactor = 4
)

// Options tune a categorization run.
type Options struct {
	BatchSize            int
	HistoryLimit         int
	RecencyDays          int
	FallbackCategoryID   string
	FallbackCategoryName string
}

// OptionsFromConfig reads the ai and history sections.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BatchSize:            cfg.AI.BatchSize,
		HistoryLimit:         cfg.History.Limit,
		RecencyDays:          cfg.History.RecencyDays,
		FallbackCategoryID:   cfg.AI.FallbackCategoryID,
		FallbackCategoryName: cfg.AI.FallbackCategoryName,
	}
}

// Summary counts the outcomes of a categorization run.
type Summary struct {
	Pending     int
	Categorised int
	Fallback    int
	Failed      int
	Batches     int
}

// Service categorizes NORMALISED transactions: it gathers historical matches,
// asks the AI client per batch and blends both into the final confidence.
type Service struct {
	store      store.TransactionStore
	ai         AIClient
	learner    *history.Learner
	calculator *confidence.Calculator
	retrier    *retry.Retrier
	opts       Options
	logger     logging.Logger
	now        func() time.Time
}

// NewService wires a Service. ai may be nil, in which case every transaction
// goes to the fallback bucket and is scored on history alone.
func NewService(st store.TransactionStore, ai AIClient, learner *history.Learner, calculator *confidence.Calculator,
	retrier *retry.Retrier, opts Options, logger logging.Logger) *Service {
	if opts.BatchSize < 1 {
		opts.BatchSize = 25
	}
	if opts.FallbackCategoryID == "" {
		opts.FallbackCategoryID = "uncategorized"
	}
	if opts.FallbackCategoryName == "" {
		opts.FallbackCategoryName = "Uncategorized"
	}
	return &Service{
		store:      st,
		ai:         ai,
		learner:    learner,
		calculator: calculator,
		retrier:    retrier,
		opts:       opts,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the clock used for lifecycle timestamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CategorizePending categorizes every NORMALISED transaction in the store.
func (s *Service) CategorizePending(ctx context.Context, categories []models.Category) (Summary, error) {
	pending, err := s.store.ReadByStatus(ctx, models.StatusNormalised)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to read pending transactions: %w", err)
	}
	return s.Categorize(ctx, pending, categories)
}

// Categorize runs txs through the AI client in batches and persists each result.
// A batch whose AI call fails, including exhausted retries, marks each of its
// transactions ERROR; the remaining batches still run and the first batch
// error is returned alongside the summary.
func (s *Service) Categorize(ctx context.Context, txs []models.Transaction, categories []models.Category) (Summary, error) {
	summary := Summary{Pending: len(txs)}
	if len(txs) == 0 {
		return summary, nil
	}
	if len(categories) == 0 {
		return summary, &txerror.ConfigError{Key: "categories.file", Reason: "no categories loaded"}
	}
	index := newCategoryIndex(categories)

	var batchErr error
	failedBatches := 0
	for start := 0; start < len(txs); start += s.opts.BatchSize {
		end := min(start+s.opts.BatchSize, len(txs))
		batch := txs[start:end]
		summary.Batches++

		matches, err := s.historyFor(ctx, batch)
		if err != nil {
			return summary, err
		}

		results, err := s.askAI(ctx, batch, categories, matches)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			s.logger.WithError(err).Error("AI batch failed, marking transactions as errored",
				logging.F(logging.FieldCount, len(batch)))
			failedBatches++
			if batchErr == nil {
				batchErr = err
			}
			summary.Failed += s.markFailed(ctx, batch, err)
			continue
		}

		for i := range batch {
			tx := batch[i]
			fallback := s.apply(&tx, results[tx.ID], index, matches[tx.ID])
			if err := s.persist(ctx, &tx); err != nil {
				summary.Failed++
				s.logger.WithError(err).Error("Failed to store category",
					logging.F(logging.FieldTransactionID, tx.ID))
				continue
			}
			summary.Categorised++
			if fallback {
				summary.Fallback++
			}
		}
	}

	s.logger.Info("Categorization finished",
		logging.F(logging.FieldCount, summary.Categorised),
		logging.F("fallback", summary.Fallback),
		logging.F("failed", summary.Failed))
	if batchErr != nil {
		return summary, fmt.Errorf("%d of %d AI batches failed: %w", failedBatches, summary.Batches, batchErr)
	}
	return summary, nil
}

// markFailed moves every transaction of a failed batch to ERROR so that
// retry-errors can bring it back to NORMALISED. It returns how many were marked.
func (s *Service) markFailed(ctx context.Context, batch []models.Transaction, cause error) int {
	message := redact.Message(cause)
	now := s.now()
	for i := range batch {
		tx := batch[i]
		tx.MarkError(message, now)
		if err := s.store.UpdateStatus(ctx, tx); err != nil {
			s.logger.WithError(err).Error("Failed to store categorization error",
				logging.F(logging.FieldTransactionID, tx.ID))
		}
	}
	return len(batch)
}

func (s *Service) historyFor(ctx context.Context, batch []models.Transaction) (map[string][]models.SimilarityMatch, error) {
	out := make(map[string][]models.SimilarityMatch, len(batch))
	for _, tx := range batch {
		corpus, err := s.store.ReadByMerchant(ctx, tx.Description, s.opts.HistoryLimit*candidateFactor, s.opts.RecencyDays)
		if err != nil {
			return nil, fmt.Errorf("failed to read history for %s: %w", tx.ID, err)
		}
		if matches := s.learner.FindSimilar(tx, corpus, s.opts.HistoryLimit, s.opts.RecencyDays); len(matches) > 0 {
			out[tx.ID] = matches
		}
	}
	return out, nil
}

// askAI returns the results keyed by transaction id.
func (s *Service) askAI(ctx context.Context, batch []models.Transaction, categories []models.Category,
	matches map[string][]models.SimilarityMatch) (map[string]AIResult, error) {
	byID := make(map[string]AIResult, len(batch))
	if s.ai == nil {
		return byID, nil
	}

	var results []AIResult
	err := s.retrier.Do(ctx, operationCategorize, func(ctx context.Context) error {
		var err error
		results, err = s.ai.CategorizeBatch(ctx, batch, categories, matches)
		return err
	})
	if err != nil {
		return byID, err
	}
	for _, r := range results {
		byID[strings.TrimSpace(r.TransactionID)] = r
	}
	return byID, nil
}

// apply sets the category fields on tx and reports whether the fallback bucket
// was used.
func (s *Service) apply(tx *models.Transaction, result AIResult, index categoryIndex, matches []models.SimilarityMatch) bool {
	cat, ok := index.resolve(result)
	aiConfidence := result.ConfidenceScore
	if !ok {
		cat = models.Category{ID: s.opts.FallbackCategoryID, Name: s.opts.FallbackCategoryName}
		aiConfidence = 0
		if result.TransactionID != "" {
			s.logger.Warn("AI returned an unknown category",
				logging.F(logging.FieldTransactionID, tx.ID),
				logging.F(logging.FieldCategory, result.CategoryID))
		}
	}

	breakdown, err := s.calculator.Calculate(confidence.Input{
		AIConfidence:      aiConfidence,
		AICategoryID:      cat.ID,
		HistoricalMatches: matches,
	})
	if err != nil {
		s.logger.WithError(err).Warn("Rejected AI confidence, using fallback category",
			logging.F(logging.FieldTransactionID, tx.ID))
		cat = models.Category{ID: s.opts.FallbackCategoryID, Name: s.opts.FallbackCategoryName}
		ok = false
		breakdown, _ = s.calculator.Calculate(confidence.Input{AICategoryID: cat.ID, HistoricalMatches: matches})
	}

	score := breakdown.FinalScore
	tx.CategoryAIID = models.StringPtr(cat.ID)
	tx.CategoryAIName = models.StringPtr(cat.Name)
	tx.CategoryConfidenceScore = &score

	s.logger.Debug("Transaction categorized",
		logging.F(logging.FieldTransactionID, tx.ID),
		logging.F(logging.FieldCategory, cat.ID),
		logging.F(logging.FieldConfidence, score),
		logging.F("historical_matches", breakdown.HistoricalMatchCount))
	return !ok
}

func (s *Service) persist(ctx context.Context, tx *models.Transaction) error {
	if err := tx.TransitionTo(models.StatusCategorised, s.now()); err != nil {
		return err
	}
	return s.store.UpdateCategory(ctx, *tx)
}

// categoryIndex resolves AI answers against the configured category list, by
// id first and then by name.
type categoryIndex struct {
	byID   map[string]models.Category
	byName map[string]models.Category
}

func newCategoryIndex(categories []models.Category) categoryIndex {
	idx := categoryIndex{
		byID:   make(map[string]models.Category, len(categories)),
		byName: make(map[string]models.Category, len(categories)),
	}
	for _, c := range categories {
		idx.byID[c.ID] = c
		idx.byName[strings.ToLower(c.Name)] = c
	}
	return idx
}

func (idx categoryIndex) resolve(r AIResult) (models.Category, bool) {
	if c, ok := idx.byID[strings.TrimSpace(r.CategoryID)]; ok && r.CategoryID != "" {
		return c, true
	}
	if c, ok := idx.byName[strings.ToLower(strings.TrimSpace(r.CategoryName))]; ok && r.CategoryName != "" {
		return c, true
	}
	if c, ok := idx.byID[store.CategoryID(r.CategoryName)]; ok && r.CategoryName != "" {
		return c, true
	}
	return models.Category{}, false
}
