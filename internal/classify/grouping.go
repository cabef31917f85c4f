// Package classify assigns every page of a document to exactly one route
// group, or to the Unassigned pseudo-group.
package classify

import (
	"fmt"
	"sort"
)

// Unassigned is the reserved group for pages without a resolvable identifier.
const Unassigned = "Unassigned"

// Outcome says how a page ended up in its group.
type Outcome string

const (
	OutcomeMatched      Outcome = "matched"
	OutcomeUnrecognized Outcome = "unrecognized"
	OutcomeUnresolved   Outcome = "unresolved"
	OutcomeFailed       Outcome = "failed"
)

// PageRecord is the per-page classification result.
type PageRecord struct {
	Index      int     `json:"index"`
	Text       string  `json:"-"`
	HasText    bool    `json:"has_text"`
	Strategy   string  `json:"strategy,omitempty"`
	Identifier string  `json:"identifier,omitempty"`
	Rule       string  `json:"rule,omitempty"`
	Route      string  `json:"route"`
	Outcome    Outcome `json:"outcome"`
	Err        string  `json:"error,omitempty"`
}

// RouteGroup holds the pages of one route in ascending order.
type RouteGroup struct {
	Route string `json:"route"`
	Pages []int  `json:"pages"`
}

// Grouping is the complete page-to-group assignment of one document.
type Grouping struct {
	TotalPages int `json:"total_pages"`
	// Groups are the route groups in first-seen order; Unassigned excluded.
	Groups     []RouteGroup `json:"groups"`
	Unassigned []int        `json:"unassigned"`
	// CustomerRoutes maps each matched identifier to its route.
	CustomerRoutes map[string]string `json:"customer_routes"`
	Pages          []PageRecord      `json:"pages"`
}

func newGrouping(total int) *Grouping {
	return &Grouping{
		TotalPages:     total,
		Groups:         []RouteGroup{},
		Unassigned:     []int{},
		CustomerRoutes: map[string]string{},
		Pages:          make([]PageRecord, 0, total),
	}
}

// assign appends page to its group. Pages arrive in ascending order, so
// groups stay sorted without re-sorting.
func (g *Grouping) assign(rec PageRecord) {
	g.Pages = append(g.Pages, rec)
	if rec.Outcome != OutcomeMatched {
		g.Unassigned = append(g.Unassigned, rec.Index)
		return
	}
	g.CustomerRoutes[rec.Identifier] = rec.Route
	for i := range g.Groups {
		if g.Groups[i].Route == rec.Route {
			g.Groups[i].Pages = append(g.Groups[i].Pages, rec.Index)
			return
		}
	}
	g.Groups = append(g.Groups, RouteGroup{Route: rec.Route, Pages: []int{rec.Index}})
}

// Routes lists route labels in first-seen order.
func (g *Grouping) Routes() []string {
	out := make([]string, len(g.Groups))
	for i, grp := range g.Groups {
		out[i] = grp.Route
	}
	return out
}

// PagesOf returns the pages of route, or of the Unassigned group when route
// is Unassigned and no real route carries that label.
func (g *Grouping) PagesOf(route string) []int {
	for _, grp := range g.Groups {
		if grp.Route == route {
			return grp.Pages
		}
	}
	if route == Unassigned {
		return g.Unassigned
	}
	return nil
}

// AssignedCount is the number of pages placed in a route group.
func (g *Grouping) AssignedCount() int {
	n := 0
	for _, grp := range g.Groups {
		n += len(grp.Pages)
	}
	return n
}

// Validate checks that every page 0..TotalPages-1 appears in exactly one
// group and that each group is ascending.
func (g *Grouping) Validate() error {
	seen := make([]bool, g.TotalPages)
	check := func(label string, pages []int) error {
		if !sort.IntsAreSorted(pages) {
			return fmt.Errorf("group %q pages not ascending", label)
		}
		for _, p := range pages {
			if p < 0 || p >= g.TotalPages {
				return fmt.Errorf("group %q has page %d outside 0..%d", label, p, g.TotalPages-1)
			}
			if seen[p] {
				return fmt.Errorf("page %d assigned more than once", p)
			}
			seen[p] = true
		}
		return nil
	}
	for _, grp := range g.Groups {
		if err := check(grp.Route, grp.Pages); err != nil {
			return err
		}
	}
	if err := check(Unassigned, g.Unassigned); err != nil {
		return err
	}
	for p, ok := range seen {
		if !ok {
			return fmt.Errorf("page %d not assigned", p)
		}
	}
	return nil
}
