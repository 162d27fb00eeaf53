package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/BradenHooton/directory-search/internal/index"
	"github.com/BradenHooton/directory-search/internal/models"
	pkglogger "github.com/BradenHooton/directory-search/pkg/logger"
)

// Generations manages the physical generations of one logical index: naming,
// creation, promotion to current, and garbage collection.
type Generations struct {
	prefix     string
	pointerKey string
	structure  models.IndexStructure
	engine     index.Engine
	pointers   PointerStore
	logger     *slog.Logger
	indexOpts  []index.Option
	newID      func() string

	mu       sync.Mutex
	building map[string]struct{}
}

func NewGenerations(prefix, pointerKey string, structure models.IndexStructure, engine index.Engine, pointers PointerStore, logger *slog.Logger, opts ...index.Option) *Generations {
	return &Generations{
		prefix:     prefix,
		pointerKey: pointerKey,
		structure:  structure,
		engine:     engine,
		pointers:   pointers,
		logger:     logger,
		indexOpts:  opts,
		newID:      uuid.NewString,
		building:   make(map[string]struct{}),
	}
}

// Current returns the generation readers should query, or models.ErrNotFound.
func (g *Generations) Current(ctx context.Context) (*index.Index, error) {
	name, err := g.pointers.CurrentIndex(ctx, g.pointerKey)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("no current %s index: %w", g.prefix, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read %s: %w", g.pointerKey, err)
	}
	return index.New(g.engine, name, g.structure, g.logger, g.indexOpts...), nil
}

// Begin creates a new empty generation and marks it in flight until Done.
func (g *Generations) Begin(ctx context.Context) (*index.Index, error) {
	name := g.prefix + "-" + g.newID()

	g.mu.Lock()
	g.building[name] = struct{}{}
	g.mu.Unlock()

	idx, err := index.Create(ctx, g.engine, name, g.structure, g.logger, g.indexOpts...)
	if err != nil {
		g.Done(name)
		return nil, err
	}
	return idx, nil
}

// Done clears the in-flight mark for a generation.
func (g *Generations) Done(name string) {
	g.mu.Lock()
	delete(g.building, name)
	g.mu.Unlock()
}

// Promote makes idx the current generation. Last write wins.
func (g *Generations) Promote(ctx context.Context, idx *index.Index) error {
	if err := g.pointers.SetCurrentIndex(ctx, g.pointerKey, idx.Name()); err != nil {
		return fmt.Errorf("failed to set %s to %s: %w", g.pointerKey, idx.Name(), err)
	}
	return nil
}

// Tidy deletes every generation of this index except the current one and any
// build in flight in this process. Without a current pointer nothing is deleted.
func (g *Generations) Tidy(ctx context.Context) error {
	correlationID := pkglogger.CorrelationID(ctx)
	return index.TidyIndexes(ctx, g.engine, g.unused, g.logger, correlationID)
}

func (g *Generations) unused(ctx context.Context, names []string) ([]string, error) {
	current, err := g.pointers.CurrentIndex(ctx, g.pointerKey)
	if errors.Is(err, models.ErrNotFound) {
		g.logger.Warn("no current index recorded, not tidying",
			slog.String("pointer", g.pointerKey),
			pkglogger.CorrelationAttr(pkglogger.CorrelationID(ctx)),
		)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", g.pointerKey, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	unused := make([]string, 0)
	for _, name := range names {
		if !strings.HasPrefix(name, g.prefix+"-") || name == current {
			continue
		}
		if _, inFlight := g.building[name]; inFlight {
			continue
		}
		unused = append(unused, name)
	}
	return unused, nil
}
