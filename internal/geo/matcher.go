package geo

import (
	"context"
	"sort"
	"strings"

	"github.com/agroamigo/sipsa-cli/internal/model"
	"github.com/agroamigo/sipsa-cli/internal/store"
)

// Matcher resolves bulletin city names to DIVIPOLA municipalities. It
// is immutable after construction and safe for concurrent use.
type Matcher struct {
	byKey map[string][]model.Municipality
	keys  []string
}

// NewMatcher indexes municipalities by their folded name key.
func NewMatcher(munis []model.Municipality) *Matcher {
	m := &Matcher{byKey: make(map[string][]model.Municipality, len(munis))}
	for _, mun := range munis {
		k := Key(mun.Name)
		if k == "" {
			continue
		}
		if _, ok := m.byKey[k]; !ok {
			m.keys = append(m.keys, k)
		}
		m.byKey[k] = append(m.byKey[k], mun)
	}
	sort.Strings(m.keys)
	return m
}

// LoadMatcher builds a matcher from the municipalities table. An empty
// table yields an empty matcher, which matches nothing.
func LoadMatcher(ctx context.Context, st store.Store) (*Matcher, error) {
	munis, err := st.ListMunicipalities(ctx)
	if err != nil {
		return nil, err
	}
	return NewMatcher(munis), nil
}

// Size reports the number of distinct name keys indexed.
func (m *Matcher) Size() int {
	return len(m.keys)
}

// Match resolves a city name to its municipality. An exact key match
// wins; failing that, a prefix relation between the two keys in either
// direction counts, but only when it identifies a single municipality.
// Homonymous municipalities in different departments are ambiguous and
// do not match.
func (m *Matcher) Match(city string) (model.Municipality, bool) {
	key := Key(city)
	if key == "" {
		return model.Municipality{}, false
	}
	if munis, ok := m.byKey[key]; ok {
		if len(munis) == 1 {
			return munis[0], true
		}
		return model.Municipality{}, false
	}

	var found []model.Municipality
	for _, k := range m.keys {
		if strings.HasPrefix(k, key+" ") || strings.HasPrefix(key, k+" ") {
			found = append(found, m.byKey[k]...)
			if len(found) > 1 {
				return model.Municipality{}, false
			}
		}
	}
	if len(found) == 1 {
		return found[0], true
	}
	return model.Municipality{}, false
}
