// Package feed declares the boundary to the feed-record storage. The CRUD
// storage for feed records, translations, and country metadata is an external
// collaborator of this backend; only the types and the read interface that the
// recommendation path consumes are declared here.
package feed

import "context"

// Feed is a single feed record as exposed by the external store. Nutrient
// values are on a dry-matter basis.
type Feed struct {
	ID              string  `json:"id"`
	CountryID       string  `json:"country_id"`
	Name            string  `json:"name"`
	Category        string  `json:"category"`
	DryMatterPct    float64 `json:"dry_matter_pct"`
	CrudeProtein    float64 `json:"crude_protein"`
	MetabolicEnergy float64 `json:"metabolic_energy"`
	CostPerKg       float64 `json:"cost_per_kg"`
}

// Store is the read surface the recommendation collaborator needs. The
// implementation lives outside this repository.
type Store interface {
	// GetByID returns a feed record or (nil, nil) when it does not exist.
	GetByID(ctx context.Context, id string) (*Feed, error)
	// ListByCountry returns all feed records available in one country.
	ListByCountry(ctx context.Context, countryID string) ([]*Feed, error)
}
