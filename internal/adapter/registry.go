package adapter

import (
	"fmt"
	"sort"

	"github.com/amishk599/jobharvest/internal/model"
)

// Supported adapter kinds.
const (
	KindHTML       = "html"
	KindGreenhouse = "greenhouse"
	KindLever      = "lever"
	KindAshby      = "ashby"
	KindWorkday    = "workday"
	KindGem        = "gem"
)

// Site is the adapter-facing part of a site's configuration.
type Site struct {
	Name              string
	Kind              string
	BaseURL           string // public site root; the Workday API root for workday
	SearchURLTemplate string // html only, must contain {page}
	APIBase           string // overrides the public API root for the board kinds
	Company           string // default company for single-company boards
	Token             string // board token or company slug
	Selectors         Selectors
}

// Constructor builds an adapter for one configured site.
type Constructor func(site Site) (model.SiteAdapter, error)

// Registry maps a configured kind to its adapter constructor.
type Registry struct {
	ctors map[string]Constructor
}

// NewRegistry returns a registry holding every built-in kind.
func NewRegistry() *Registry {
	r := &Registry{ctors: make(map[string]Constructor)}
	r.Register(KindHTML, func(s Site) (model.SiteAdapter, error) { return NewHTMLAdapter(s) })
	r.Register(KindGreenhouse, func(s Site) (model.SiteAdapter, error) { return NewGreenhouseAdapter(s) })
	r.Register(KindLever, func(s Site) (model.SiteAdapter, error) { return NewLeverAdapter(s) })
	r.Register(KindAshby, func(s Site) (model.SiteAdapter, error) { return NewAshbyAdapter(s) })
	r.Register(KindWorkday, func(s Site) (model.SiteAdapter, error) { return NewWorkdayAdapter(s) })
	r.Register(KindGem, func(s Site) (model.SiteAdapter, error) { return NewGemAdapter(s) })
	return r
}

// Register adds or replaces the constructor for kind.
func (r *Registry) Register(kind string, ctor Constructor) {
	r.ctors[kind] = ctor
}

// Build constructs the adapter for site.
func (r *Registry) Build(site Site) (model.SiteAdapter, error) {
	ctor, ok := r.ctors[site.Kind]
	if !ok {
		return nil, fmt.Errorf("site %q: unknown adapter kind %q", site.Name, site.Kind)
	}
	a, err := ctor(site)
	if err != nil {
		return nil, fmt.Errorf("site %q: %w", site.Name, err)
	}
	return a, nil
}

// Kinds lists the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.ctors))
	for k := range r.ctors {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
