package normalizer

import (
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/PRYePR/moreyudeals-sub000/internal/extract"
)

//go:embed merchants.json categories.json
var embeddedTables embed.FS

// Entity is one canonical merchant or category with the names that resolve to it.
type Entity struct {
	CanonicalID      string              `json:"canonicalId"`
	CanonicalName    string              `json:"canonicalName"`
	Aliases          []string            `json:"aliases"`
	PerSourceAliases map[string][]string `json:"perSourceAliases,omitempty"`
	Logo             string              `json:"logo,omitempty"`
}

// AliasConfig is the on-disk form of an alias table.
type AliasConfig struct {
	Entities  []Entity `json:"entities"`
	Blacklist []string `json:"blacklist,omitempty"`
}

// AliasTable resolves raw names to canonical entities. Matching is
// case-insensitive and exact; substrings never match.
type AliasTable struct {
	global    map[string]*Entity
	perSource map[string]map[string]*Entity
	blacklist map[string]bool
	size      int
}

// NewAliasTable indexes cfg. The canonical id and name always act as aliases.
func NewAliasTable(cfg AliasConfig) *AliasTable {
	t := &AliasTable{
		global:    make(map[string]*Entity),
		perSource: make(map[string]map[string]*Entity),
		blacklist: make(map[string]bool),
		size:      len(cfg.Entities),
	}
	for i := range cfg.Entities {
		e := &cfg.Entities[i]
		for _, name := range append([]string{e.CanonicalID, e.CanonicalName}, e.Aliases...) {
			if key := aliasKey(name); key != "" {
				t.global[key] = e
			}
		}
		for source, aliases := range e.PerSourceAliases {
			if t.perSource[source] == nil {
				t.perSource[source] = make(map[string]*Entity)
			}
			for _, name := range aliases {
				if key := aliasKey(name); key != "" {
					t.perSource[source][key] = e
				}
			}
		}
	}
	for _, name := range cfg.Blacklist {
		t.blacklist[aliasKey(name)] = true
	}
	return t
}

func aliasKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Lookup resolves name for source, preferring the source's own aliases.
func (t *AliasTable) Lookup(source, name string) (Entity, bool) {
	key := aliasKey(name)
	if key == "" {
		return Entity{}, false
	}
	if e, ok := t.perSource[source][key]; ok {
		return *e, true
	}
	if e, ok := t.global[key]; ok {
		return *e, true
	}
	return Entity{}, false
}

// IsBlacklisted reports whether name is an aggregator or meta-shop that must not
// be taken as the merchant.
func (t *AliasTable) IsBlacklisted(name string) bool {
	return t.blacklist[aliasKey(name)]
}

// Len returns the number of canonical entities.
func (t *AliasTable) Len() int { return t.size }

// LoadAliasTable reads an alias table from path, or from the embedded default
// named embeddedName when path is empty or unreadable.
func LoadAliasTable(path, embeddedName string) (*AliasTable, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			table, parseErr := LoadAliasTableFromBytes(data)
			if parseErr == nil {
				slog.Info("Loaded alias table from file", "path", path, "entities", table.Len())
				return table, nil
			}
			slog.Warn("Alias table file failed to parse. Using embedded table.", "path", path, "error", parseErr)
		} else {
			slog.Warn("Failed to read alias table file. Using embedded table.", "path", path, "error", err)
		}
	}

	data, err := embeddedTables.ReadFile(embeddedName)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded alias table %s: %w", embeddedName, err)
	}
	return LoadAliasTableFromBytes(data)
}

// LoadAliasTableFromBytes parses an alias table from raw JSON.
func LoadAliasTableFromBytes(data []byte) (*AliasTable, error) {
	var cfg AliasConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse alias table JSON: %w", err)
	}
	return NewAliasTable(cfg), nil
}

// MerchantMatch is the resolved merchant of a deal.
type MerchantMatch struct {
	Raw           string
	CanonicalID   string
	CanonicalName string
	Logo          string
}

// ResolveMerchant walks the candidate names in order (badge text, image alt text,
// ...). Blacklisted names are skipped. The first alias hit wins; without a hit the
// first usable candidate becomes a slug-identified merchant.
func (t *AliasTable) ResolveMerchant(source string, candidates ...string) (MerchantMatch, bool) {
	fallback := ""
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" || t.IsBlacklisted(c) {
			continue
		}
		if e, ok := t.Lookup(source, c); ok {
			return MerchantMatch{Raw: c, CanonicalID: e.CanonicalID, CanonicalName: e.CanonicalName, Logo: e.Logo}, true
		}
		if fallback == "" {
			fallback = c
		}
	}
	if fallback == "" {
		return MerchantMatch{}, false
	}
	id := extract.Slugify(fallback)
	if id == "" {
		return MerchantMatch{}, false
	}
	return MerchantMatch{Raw: fallback, CanonicalID: id, CanonicalName: fallback}, true
}

// UnmatchedTracker counts raw category names that resolved to nothing, so an
// operator can extend the alias table.
type UnmatchedTracker struct {
	mu       sync.Mutex
	counts   map[string]int
	onRecord func(source, raw string)
}

func NewUnmatchedTracker(onRecord func(source, raw string)) *UnmatchedTracker {
	return &UnmatchedTracker{counts: make(map[string]int), onRecord: onRecord}
}

func (u *UnmatchedTracker) Record(source, raw string) {
	if u == nil {
		return
	}
	key := source + "|" + aliasKey(raw)
	u.mu.Lock()
	u.counts[key]++
	first := u.counts[key] == 1
	u.mu.Unlock()

	if first {
		slog.Info("Unmatched category", "source", source, "category", raw)
	}
	if u.onRecord != nil {
		u.onRecord(source, raw)
	}
}

// Snapshot returns the counts keyed by "source|category".
func (u *UnmatchedTracker) Snapshot() map[string]int {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make(map[string]int, len(u.counts))
	for k, v := range u.counts {
		out[k] = v
	}
	return out
}

// ResolveCategories maps raw category names to canonical ids, deduplicated and
// in first-seen order. Unmatched names are recorded; an empty result falls back
// to the generic category.
func (t *AliasTable) ResolveCategories(source string, raw []string, unmatched *UnmatchedTracker, fallback string) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, r := range raw {
		if strings.TrimSpace(r) == "" {
			continue
		}
		e, ok := t.Lookup(source, r)
		if !ok {
			unmatched.Record(source, r)
			continue
		}
		if !seen[e.CanonicalID] {
			seen[e.CanonicalID] = true
			ids = append(ids, e.CanonicalID)
		}
	}
	if len(ids) == 0 {
		return []string{fallback}
	}
	return ids
}
