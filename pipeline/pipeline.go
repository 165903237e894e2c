// Package pipeline composes ordered request stages in front of the
// application router.
//
// Each Stage is a chi-compatible middleware with an Order and optional
// path Rules. Stages run in ascending Order; a stage whose Rules do not
// select the request path is skipped for that request.
package pipeline

import (
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/sessiongate/pathmatch"
)

// Stage is one step of the request pipeline.
type Stage struct {
	Name  string
	Order int
	// Rules selects the paths this stage runs for. Nil runs it for every path.
	Rules      *pathmatch.Rules
	Middleware func(http.Handler) http.Handler
}

// Chain is an ordered, immutable set of stages.
type Chain struct {
	stages []Stage
}

// New sorts stages by Order and validates them. Names and orders must be
// unique.
func New(stages ...Stage) (*Chain, error) {
	sorted := slices.Clone(stages)
	slices.SortStableFunc(sorted, func(a, b Stage) int { return a.Order - b.Order })

	names := make(map[string]bool, len(sorted))
	for i, s := range sorted {
		if s.Name == "" {
			return nil, errors.New("pipeline stage name is required")
		}
		if s.Middleware == nil {
			return nil, fmt.Errorf("pipeline stage %q has no middleware", s.Name)
		}
		if names[s.Name] {
			return nil, fmt.Errorf("duplicate pipeline stage %q", s.Name)
		}
		names[s.Name] = true
		if i > 0 && sorted[i-1].Order == s.Order {
			return nil, fmt.Errorf("pipeline stages %q and %q share order %d", sorted[i-1].Name, s.Name, s.Order)
		}
	}
	return &Chain{stages: sorted}, nil
}

// Stages returns the stages in execution order.
func (c *Chain) Stages() []Stage {
	return slices.Clone(c.stages)
}

// Middlewares returns the stages as chi middlewares, outermost first.
func (c *Chain) Middlewares() chi.Middlewares {
	mws := make([]func(http.Handler) http.Handler, 0, len(c.stages))
	for _, s := range c.stages {
		mws = append(mws, s.wrap())
	}
	return chi.Chain(mws...)
}

// Handler wraps next with every stage.
func (c *Chain) Handler(next http.Handler) http.Handler {
	return c.Middlewares().Handler(next)
}

func (s Stage) wrap() func(http.Handler) http.Handler {
	if s.Rules == nil {
		return s.Middleware
	}
	return func(next http.Handler) http.Handler {
		staged := s.Middleware(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.Rules.Applies(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			staged.ServeHTTP(w, r)
		})
	}
}
