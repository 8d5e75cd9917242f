package category

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// IDGenerator generates IDs for categories created without one
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service owns category edits and hands out classification engines
type Service struct {
	db          DB
	idGenerator IDGenerator
	timeSource  TimeSource

	mu     sync.Mutex
	engine *Engine
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB) *Service {
	return NewServiceWithDeps(db, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// ListCategories returns all categories in evaluation order
func (s *Service) ListCategories() ([]*Category, error) {
	categories, err := s.db.ListCategories()
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}

	values := make([]Category, len(categories))
	for i, c := range categories {
		values[i] = *c
	}
	sortForEvaluation(values)

	out := make([]*Category, len(values))
	for i := range values {
		out[i] = &values[i]
	}
	return out, nil
}

// GetCategory retrieves a category by ID
func (s *Service) GetCategory(id ID) (*Category, error) {
	c, err := s.db.GetCategory(id)
	if err != nil {
		return nil, fmt.Errorf("getting category: %w", err)
	}
	return c, nil
}

// UpsertCategory validates and saves a category. A missing ID is generated;
// an existing category keeps its creation time.
func (s *Service) UpsertCategory(c Category) (*Category, error) {
	c.ID = strings.TrimSpace(c.ID)
	c.Name = strings.TrimSpace(c.Name)
	if c.ID == "" {
		c.ID = s.idGenerator.Generate()
	}
	if c.Rules == nil {
		c.Rules = []Rule{}
	}
	for i := range c.Rules {
		if c.Rules[i].Mode == "" {
			c.Rules[i].Mode = MatchSubstring
		}
	}
	if err := Validate(c); err != nil {
		return nil, err
	}

	now := s.timeSource.Now()
	c.CreatedAt = now
	if existing, err := s.db.GetCategory(c.ID); err == nil {
		c.CreatedAt = existing.CreatedAt
	}
	c.UpdatedAt = now

	if err := s.db.SaveCategory(&c); err != nil {
		return nil, fmt.Errorf("saving category: %w", err)
	}
	s.invalidate()

	slog.Info("Category saved", "category_id", c.ID, "rules", len(c.Rules))
	return &c, nil
}

// DeleteCategory removes a category. Items already assigned to it keep the ID.
func (s *Service) DeleteCategory(id ID) error {
	if err := s.db.DeleteCategory(id); err != nil {
		return fmt.Errorf("deleting category: %w", err)
	}
	s.invalidate()
	return nil
}

// Engine returns a classification engine over the current rule set
func (s *Service) Engine() (*Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine != nil {
		return s.engine, nil
	}
	categories, err := s.db.ListCategories()
	if err != nil {
		return nil, fmt.Errorf("loading categories: %w", err)
	}
	values := make([]Category, len(categories))
	for i, c := range categories {
		values[i] = *c
	}
	s.engine = NewEngine(values)
	return s.engine, nil
}

// ShelfLife returns the configured shelf life of a category
func (s *Service) ShelfLife(id ID) (time.Duration, bool) {
	c, err := s.db.GetCategory(id)
	if err != nil || c.ShelfLifeDays <= 0 {
		return 0, false
	}
	return time.Duration(c.ShelfLifeDays) * 24 * time.Hour, true
}

// SeedDefaults saves the default categories when none exist yet
func (s *Service) SeedDefaults() (int, error) {
	existing, err := s.db.ListCategories()
	if err != nil {
		return 0, fmt.Errorf("listing categories: %w", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}

	defaults := Defaults()
	sort.SliceStable(defaults, func(i, j int) bool { return defaults[i].Priority < defaults[j].Priority })
	for _, c := range defaults {
		if _, err := s.UpsertCategory(c); err != nil {
			return 0, fmt.Errorf("seeding category %s: %w", c.ID, err)
		}
	}
	return len(defaults), nil
}

func (s *Service) invalidate() {
	s.mu.Lock()
	s.engine = nil
	s.mu.Unlock()
}
