// Package catalog loads the token catalog that maps RFIDs to value, memory
// type and group.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/okian/gmscan/internal/domain/model"
)

// RequiredFields are the catalog fields the device needs per token.
var RequiredFields = []string{"SF_RFID", "SF_ValueRating", "SF_MemoryType", "SF_Group"}

// UnknownMemoryType is assigned to scans of tokens missing from the catalog.
const UnknownMemoryType = "UNKNOWN"

var (
	ErrNoCatalog = errors.New("no token catalog found")
	ErrMalformed = errors.New("malformed token catalog")
)

// Issue is a missing required field on one token.
type Issue struct {
	TokenID string `json:"tokenId" yaml:"tokenId"`
	Field   string `json:"field" yaml:"field"`
}

func (i Issue) String() string {
	return i.TokenID + "." + i.Field
}

// Catalog is an immutable token table.
type Catalog struct {
	source string
	tokens map[string]model.Token
	raw    map[string]map[string]json.RawMessage
}

// Load reads the first existing path. A missing file falls through to the
// next path; a malformed one is an error.
func Load(paths ...string) (*Catalog, error) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("catalog: read %s: %w", path, err)
		}
		c, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("catalog: %s: %w", path, err)
		}
		c.source = path
		return c, nil
	}
	return nil, fmt.Errorf("catalog: tried %v: %w", paths, ErrNoCatalog)
}

// Parse decodes a catalog document keyed by token ID.
func Parse(data []byte) (*Catalog, error) {
	var raw map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	c := &Catalog{tokens: make(map[string]model.Token, len(raw)), raw: raw}
	for id, fields := range raw {
		var tok model.Token
		body, _ := json.Marshal(fields)
		if err := json.Unmarshal(body, &tok); err != nil {
			return nil, fmt.Errorf("%w: token %s: %w", ErrMalformed, id, err)
		}
		if tok.RFID == "" {
			tok.RFID = id
		}
		c.tokens[id] = tok
	}
	return c, nil
}

// New builds a catalog from tokens, used by tests and simulations.
func New(tokens ...model.Token) *Catalog {
	c := &Catalog{tokens: make(map[string]model.Token, len(tokens))}
	for _, t := range tokens {
		c.tokens[t.RFID] = t
	}
	return c
}

// Source is the path the catalog was loaded from.
func (c *Catalog) Source() string {
	return c.source
}

func (c *Catalog) Len() int {
	return len(c.tokens)
}

// Lookup returns the token with the given ID.
func (c *Catalog) Lookup(tokenID string) (model.Token, bool) {
	t, ok := c.tokens[tokenID]
	return t, ok
}

// Tokens returns every token sorted by ID.
func (c *Catalog) Tokens() []model.Token {
	out := make([]model.Token, 0, len(c.tokens))
	for _, t := range c.tokens {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RFID < out[j].RFID })
	return out
}

// TokenIDs returns every token ID, sorted.
func (c *Catalog) TokenIDs() []string {
	ids := make([]string, 0, len(c.tokens))
	for id := range c.tokens {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Enrich fills value, type and group from the catalog. Unknown tokens are
// marked so they never score.
func (c *Catalog) Enrich(tx *model.Transaction) {
	t, ok := c.tokens[tx.TokenID]
	if !ok {
		tx.IsUnknown = true
		tx.MemoryType = UnknownMemoryType
		tx.ValueRating = 0
		tx.Group = ""
		return
	}
	tx.IsUnknown = false
	tx.MemoryType = t.MemoryType
	tx.ValueRating = t.ValueRating
	tx.Group = t.Group
}

// Verify reports every token missing a required field, sorted by token ID.
// Catalogs built with New carry no raw fields and always verify clean.
func (c *Catalog) Verify() []Issue {
	ids := make([]string, 0, len(c.raw))
	for id := range c.raw {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var issues []Issue
	for _, id := range ids {
		for _, field := range RequiredFields {
			if _, ok := c.raw[id][field]; !ok {
				issues = append(issues, Issue{TokenID: id, Field: field})
			}
		}
	}
	return issues
}
