// Package scoring computes token values and team scores from a transaction list.
//
// Every function here is pure with respect to its inputs: the Engine only holds
// fixed tables and the group catalog, so calling TeamScore twice on the same
// transactions yields identical results regardless of when they were delivered.
package scoring

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/okian/gmscan/internal/domain/model"
	"github.com/okian/gmscan/pkg/logger"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// UnknownMemoryType is the memory type that never scores.
const UnknownMemoryType = "unknown"

// ErrInvalidMultiplier is reported when a group suffix carries N < 1.
var ErrInvalidMultiplier = errors.New("group multiplier must be at least 1")

// DefaultBaseValues maps value rating to base points.
func DefaultBaseValues() map[int]int {
	return map[int]int{1: 100, 2: 500, 3: 1000, 4: 5000, 5: 10000}
}

// DefaultTypeMultipliers maps a normalized memory type to its multiplier.
func DefaultTypeMultipliers() map[string]int {
	return map[string]int{"personal": 1, "business": 3, "technical": 5, UnknownMemoryType: 0}
}

var groupSuffix = regexp.MustCompile(`(?i)^(.*?)\s*\(x(-?\d+)\)\s*$`)

// ParseGroupInfo extracts the group name and the "(xN)" multiplier.
// A missing suffix or N < 1 yields multiplier 1.
func ParseGroupInfo(group string) model.GroupInfo {
	info, _ := parseGroup(group)
	return info
}

func parseGroup(group string) (model.GroupInfo, error) {
	m := groupSuffix.FindStringSubmatch(group)
	if m == nil {
		return model.GroupInfo{Name: strings.TrimSpace(group), Multiplier: 1}, nil
	}
	info := model.GroupInfo{Name: strings.TrimSpace(m[1]), Multiplier: 1}
	n, err := strconv.Atoi(m[2])
	if err != nil || n < 1 {
		return info, ErrInvalidMultiplier
	}
	info.Multiplier = n
	return info, nil
}

var apostrophes = strings.NewReplacer(
	"‘", "'", // left single quotation mark
	"’", "'", // right single quotation mark
	"ʼ", "'", // modifier letter apostrophe
	"′", "'", // prime
	"`", "'",
)

// NormalizeGroupName is the only key valid for completion matching: lowercase,
// single spaces, straight apostrophes.
func NormalizeGroupName(name string) string {
	s := norm.NFC.String(name)
	s = apostrophes.Replace(s)
	s = cases.Lower(language.Und).String(s)
	return strings.Join(strings.Fields(s), " ")
}

// Group is a catalog group eligible for a completion bonus lookup.
type Group struct {
	Name       string
	Key        string
	Multiplier int
	Tokens     []string
}

// Bonus reports whether completing the group can award anything.
func (g *Group) Bonus() bool {
	return len(g.Tokens) > 1 && g.Multiplier > 1
}

// Engine holds the scoring tables and the group catalog.
type Engine struct {
	baseValues      map[int]int
	typeMultipliers map[string]int
	groups          map[string]*Group
	tokenGroup      map[string]string
	catalog         []model.Token
	logger          logger.Logger
}

// NewEngine creates an engine with the default tables and an empty catalog.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		baseValues:      DefaultBaseValues(),
		typeMultipliers: DefaultTypeMultipliers(),
		groups:          make(map[string]*Group),
		tokenGroup:      make(map[string]string),
		logger:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if len(e.catalog) > 0 {
		e.indexCatalog(e.catalog)
	}
	return e
}

func (e *Engine) indexCatalog(tokens []model.Token) {
	e.groups = make(map[string]*Group)
	e.tokenGroup = make(map[string]string)

	ids := make([]string, 0, len(tokens))
	byID := make(map[string]model.Token, len(tokens))
	for _, t := range tokens {
		if _, dup := byID[t.RFID]; !dup {
			ids = append(ids, t.RFID)
		}
		byID[t.RFID] = t
	}
	sort.Strings(ids)

	for _, id := range ids {
		t := byID[id]
		info, err := parseGroup(t.Group)
		if err != nil {
			e.logger.Warn(context.Background(), "invalid group multiplier, using 1",
				logger.String("token_id", id), logger.String("group", t.Group))
		}
		if info.Name == "" {
			continue
		}
		key := NormalizeGroupName(info.Name)
		g, ok := e.groups[key]
		if !ok {
			g = &Group{Name: info.Name, Key: key, Multiplier: 1}
			e.groups[key] = g
		}
		if info.Multiplier > g.Multiplier {
			g.Multiplier = info.Multiplier
		}
		g.Tokens = append(g.Tokens, id)
		e.tokenGroup[id] = key
	}
}

// Groups returns the catalog groups sorted by key.
func (e *Engine) Groups() []Group {
	out := make([]Group, 0, len(e.groups))
	for _, g := range e.groups {
		cp := *g
		cp.Tokens = append([]string(nil), g.Tokens...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// TokenValue is the base value of one transaction.
func (e *Engine) TokenValue(tx *model.Transaction) int {
	if tx.IsUnknown {
		return 0
	}
	return e.baseValues[tx.ValueRating] * e.typeMultiplier(tx.MemoryType)
}

func (e *Engine) typeMultiplier(memoryType string) int {
	key := strings.ToLower(strings.TrimSpace(memoryType))
	if m, ok := e.typeMultipliers[key]; ok {
		return m
	}
	return 1
}

// groupKey returns the normalized group of a transaction, preferring the
// group string it was scanned with and falling back to the catalog.
func (e *Engine) groupKey(tx *model.Transaction) string {
	if name := ParseGroupInfo(tx.Group).Name; name != "" {
		return NormalizeGroupName(name)
	}
	return e.tokenGroup[tx.TokenID]
}

// CompletedGroups returns the sorted keys of bonus groups whose every token is
// in teamTokens. Groups that cannot award a bonus are never reported.
func (e *Engine) CompletedGroups(teamTokens []string) []string {
	owned := make(map[string]struct{}, len(teamTokens))
	for _, id := range teamTokens {
		owned[id] = struct{}{}
	}

	completed := make([]string, 0)
	for key, g := range e.groups {
		if !g.Bonus() {
			continue
		}
		all := true
		for _, id := range g.Tokens {
			if _, ok := owned[id]; !ok {
				all = false
				break
			}
		}
		if all {
			completed = append(completed, key)
		}
	}
	sort.Strings(completed)
	return completed
}

// TeamScore recomputes a team's score from scratch. Transactions belonging to
// other teams are ignored.
func (e *Engine) TeamScore(teamID string, txs []model.Transaction) model.TeamScore {
	score := model.TeamScore{TeamID: teamID, CompletedGroups: []string{}}

	scored := make([]*model.Transaction, 0, len(txs))
	tokens := make([]string, 0, len(txs))
	for i := range txs {
		tx := &txs[i]
		if tx.TeamID != teamID {
			continue
		}
		score.TokensScanned++
		if !tx.Scored() {
			continue
		}
		scored = append(scored, tx)
		tokens = append(tokens, tx.TokenID)
	}

	score.CompletedGroups = e.CompletedGroups(tokens)
	done := make(map[string]struct{}, len(score.CompletedGroups))
	for _, key := range score.CompletedGroups {
		done[key] = struct{}{}
	}

	for _, tx := range scored {
		value := e.TokenValue(tx)
		score.BaseScore += value
		key := e.groupKey(tx)
		if _, ok := done[key]; ok {
			score.BonusScore += value * (e.groups[key].Multiplier - 1)
		}
	}
	score.TotalScore = score.BaseScore + score.BonusScore
	return score
}
