package services

import (
	"context"
	"fmt"
	"log/slog"

	"finances/internal/core"
	applog "finances/internal/log"
	"finances/internal/rules"
	"finances/internal/storage"
)

// RuleService manages a book's category rules and keeps the rule cache in
// step with every write.
type RuleService struct {
	store       storage.Store
	matcher     *rules.Matcher
	invalidator RuleInvalidator
}

// NewRuleService builds the service. invalidator may be nil when rules are
// read without a cache.
func NewRuleService(store storage.Store, matcher *rules.Matcher, invalidator RuleInvalidator) *RuleService {
	return &RuleService{store: store, matcher: matcher, invalidator: invalidator}
}

func (s *RuleService) List(ctx context.Context, bookID string) ([]core.CategoryRule, error) {
	if _, err := s.store.GetBook(ctx, bookID); err != nil {
		return nil, err
	}
	return s.store.ListRules(ctx, bookID)
}

func (s *RuleService) Create(ctx context.Context, rule core.CategoryRule) (core.CategoryRule, error) {
	if err := rule.Validate(); err != nil {
		return core.CategoryRule{}, err
	}
	if _, err := s.store.GetBook(ctx, rule.AccountBookID); err != nil {
		return core.CategoryRule{}, err
	}
	created, err := s.store.CreateRule(ctx, rule)
	if err != nil {
		return core.CategoryRule{}, fmt.Errorf("create rule: %w", err)
	}
	s.invalidate(ctx, created.AccountBookID)
	return created, nil
}

// Update rewrites the keyword and category pair of a rule. The rule keeps its
// book and its position in the match order.
func (s *RuleService) Update(ctx context.Context, rule core.CategoryRule) (core.CategoryRule, error) {
	if err := rule.Validate(); err != nil {
		return core.CategoryRule{}, err
	}
	existing, err := s.store.GetRule(ctx, rule.ID)
	if err != nil {
		return core.CategoryRule{}, err
	}
	rule.AccountBookID = existing.AccountBookID
	updated, err := s.store.UpdateRule(ctx, rule)
	if err != nil {
		return core.CategoryRule{}, fmt.Errorf("update rule: %w", err)
	}
	s.invalidate(ctx, updated.AccountBookID)
	return updated, nil
}

func (s *RuleService) Delete(ctx context.Context, id string) error {
	existing, err := s.store.GetRule(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteRule(ctx, id); err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	s.invalidate(ctx, existing.AccountBookID)
	return nil
}

// Match resolves the category pair for description, falling back to the
// given pair when no rule matches.
func (s *RuleService) Match(ctx context.Context, bookID, description, category, subcategory string) (string, string) {
	return s.matcher.MatchCategory(ctx, bookID, description, category, subcategory)
}

func (s *RuleService) invalidate(ctx context.Context, bookID string) {
	if s.invalidator == nil {
		return
	}
	s.invalidator.Invalidate(bookID)
	slog.DebugContext(ctx, "Rule cache invalidated",
		applog.FieldComponent, applog.ComponentCache,
		applog.FieldBookID, bookID)
}
