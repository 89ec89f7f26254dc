package pages

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/siteverify/internal/models"
)

// ErrPageNotFound is returned when a route is not in the registry
var ErrPageNotFound = errors.New("page not found")

// Registry is the ordered, immutable catalog of pages under test
type Registry struct {
	specs   []models.PageSpec
	byRoute map[string]int
}

// NewRegistry validates specs and builds a registry preserving their order.
// Routes must be unique and every spec needs at least one landmark strategy
// and one expected content matcher.
func NewRegistry(specs []models.PageSpec) (*Registry, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("page catalog is empty")
	}

	validate := validator.New()
	r := &Registry{
		specs:   make([]models.PageSpec, 0, len(specs)),
		byRoute: make(map[string]int, len(specs)),
	}

	for i, spec := range specs {
		if err := validate.Struct(spec); err != nil {
			return nil, fmt.Errorf("invalid page spec %d (%s): %w", i, spec.Name, err)
		}
		if spec.TitlePattern != "" {
			if _, err := regexp.Compile(spec.TitlePattern); err != nil {
				return nil, fmt.Errorf("invalid title pattern for %s: %w", spec.Name, err)
			}
		}
		if spec.HeadingPattern != "" {
			if _, err := regexp.Compile(spec.HeadingPattern); err != nil {
				return nil, fmt.Errorf("invalid heading pattern for %s: %w", spec.Name, err)
			}
		}
		if prev, ok := r.byRoute[spec.Route]; ok {
			return nil, fmt.Errorf("duplicate route %s in page catalog (%s and %s)", spec.Route, r.specs[prev].Name, spec.Name)
		}

		r.byRoute[spec.Route] = len(r.specs)
		r.specs = append(r.specs, clone(spec))
	}

	return r, nil
}

// All returns the specs in declared order
func (r *Registry) All() []models.PageSpec {
	out := make([]models.PageSpec, len(r.specs))
	for i, spec := range r.specs {
		out[i] = clone(spec)
	}
	return out
}

// Get returns the spec for a route
func (r *Registry) Get(route string) (models.PageSpec, error) {
	i, ok := r.byRoute[route]
	if !ok {
		return models.PageSpec{}, fmt.Errorf("%s: %w", route, ErrPageNotFound)
	}
	return clone(r.specs[i]), nil
}

// Select returns the specs for the given routes in catalog order. An empty
// selection returns every spec.
func (r *Registry) Select(routes []string) ([]models.PageSpec, error) {
	if len(routes) == 0 {
		return r.All(), nil
	}

	wanted := make(map[string]bool, len(routes))
	for _, route := range routes {
		if _, ok := r.byRoute[route]; !ok {
			return nil, fmt.Errorf("%s: %w", route, ErrPageNotFound)
		}
		wanted[route] = true
	}

	var out []models.PageSpec
	for _, spec := range r.specs {
		if wanted[spec.Route] {
			out = append(out, clone(spec))
		}
	}
	return out, nil
}

// Len returns the number of pages
func (r *Registry) Len() int { return len(r.specs) }

// clone copies the slices so callers cannot mutate registry state
func clone(spec models.PageSpec) models.PageSpec {
	spec.LandmarkSelectors = append([]models.Strategy(nil), spec.LandmarkSelectors...)
	spec.ExpectedContent = append([]models.ContentMatcher(nil), spec.ExpectedContent...)
	if spec.ItemSelectors != nil {
		spec.ItemSelectors = append([]models.Strategy(nil), spec.ItemSelectors...)
	}
	return spec
}
