package mapper

import (
	"encoding/json"
	"fmt"

	"github.com/BradenHooton/directory-search/internal/models"
)

// ResolveOrganisations picks the organisations a document is derived from.
// The serialized snapshot wins when present, unless forceRefresh is set, in
// which case the live join is used.
func ResolveOrganisations(snapshot string, live []models.OrganisationMapping, forceRefresh bool) ([]models.OrganisationMapping, error) {
	if snapshot != "" && !forceRefresh {
		var orgs []models.OrganisationMapping
		if err := json.Unmarshal([]byte(snapshot), &orgs); err != nil {
			return nil, fmt.Errorf("invalid organisations snapshot: %w", err)
		}
		return orgs, nil
	}
	if live == nil {
		return []models.OrganisationMapping{}, nil
	}
	return live, nil
}

// organisationFields writes every organisation-derived field onto doc.
func organisationFields(doc models.Document, orgs []models.OrganisationMapping) error {
	if orgs == nil {
		orgs = []models.OrganisationMapping{}
	}
	ids := newSet()
	names := newSet()
	categories := newSet()
	identifiers := newSet()

	for _, org := range orgs {
		ids.add(org.ID)
		names.add(SearchableString(org.Name))
		categories.add(org.CategoryID)
		for _, id := range org.Identifiers() {
			identifiers.add(SearchableString(id))
		}
	}

	primary := ""
	if len(orgs) > 0 {
		primary = orgs[0].Name
	}

	snapshot, err := json.Marshal(orgs)
	if err != nil {
		return fmt.Errorf("failed to serialize organisations: %w", err)
	}

	doc["organisations"] = ids.values()
	doc["searchableOrganisations"] = names.values()
	doc["organisationCategories"] = categories.values()
	doc["organisationIdentifiers"] = identifiers.values()
	doc["primaryOrganisation"] = primary
	doc["organisationsJson"] = string(snapshot)
	return nil
}

// set keeps first-seen order and drops empty values
type set struct {
	seen  map[string]struct{}
	order []string
}

func newSet() *set {
	return &set{seen: make(map[string]struct{}), order: []string{}}
}

func (s *set) add(v string) {
	if v == "" {
		return
	}
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.order = append(s.order, v)
}

func (s *set) values() []string {
	return s.order
}

func dedupe(values []string) []string {
	s := newSet()
	for _, v := range values {
		s.add(v)
	}
	return s.values()
}
