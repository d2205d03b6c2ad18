package nostr

import (
	"encoding/json"
	"slices"
)

// Filter is a REQ filter. Tag filters are keyed by the single-letter tag name
// and serialize as "#<name>".
type Filter struct {
	IDs     []string
	Kinds   []int
	Authors []string
	Tags    map[string][]string
	Since   *int64
	Until   *int64
	Limit   int
}

func (f Filter) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, 6+len(f.Tags))
	if len(f.IDs) > 0 {
		m["ids"] = f.IDs
	}
	if len(f.Kinds) > 0 {
		m["kinds"] = f.Kinds
	}
	if len(f.Authors) > 0 {
		m["authors"] = f.Authors
	}
	for k, v := range f.Tags {
		m["#"+k] = v
	}
	if f.Since != nil {
		m["since"] = *f.Since
	}
	if f.Until != nil {
		m["until"] = *f.Until
	}
	if f.Limit > 0 {
		m["limit"] = f.Limit
	}
	return json.Marshal(m)
}

func (f *Filter) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = Filter{}
	for k, v := range raw {
		var err error
		switch {
		case k == "ids":
			err = json.Unmarshal(v, &f.IDs)
		case k == "kinds":
			err = json.Unmarshal(v, &f.Kinds)
		case k == "authors":
			err = json.Unmarshal(v, &f.Authors)
		case k == "since":
			f.Since = new(int64)
			err = json.Unmarshal(v, f.Since)
		case k == "until":
			f.Until = new(int64)
			err = json.Unmarshal(v, f.Until)
		case k == "limit":
			err = json.Unmarshal(v, &f.Limit)
		case len(k) == 2 && k[0] == '#':
			var vals []string
			err = json.Unmarshal(v, &vals)
			if f.Tags == nil {
				f.Tags = make(map[string][]string)
			}
			f.Tags[k[1:]] = vals
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Matches reports whether ev satisfies every populated field of f. Limit is ignored.
func (f Filter) Matches(ev *Event) bool {
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, ev.ID) {
		return false
	}
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, ev.Kind) {
		return false
	}
	if len(f.Authors) > 0 && !slices.Contains(f.Authors, ev.PubKey) {
		return false
	}
	if f.Since != nil && ev.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && ev.CreatedAt > *f.Until {
		return false
	}
	for name, want := range f.Tags {
		found := false
		for _, t := range ev.Tags {
			if len(t) >= 2 && t[0] == name && slices.Contains(want, t[1]) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func Timestamp(ts int64) *int64 {
	return &ts
}
