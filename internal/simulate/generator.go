package simulate

import (
	"fmt"
	"math/rand/v2"

	"github.com/okian/gmscan/internal/domain/model"
)

// Generate builds cfg.Scans scans. Tokens are drawn with replacement so
// the run exercises duplicate rejection as well as acceptance.
func Generate(cfg *Config) ([]Scan, error) {
	c := cfg.withDefaults()
	if len(c.Tokens) == 0 {
		return nil, ErrNoTokens
	}

	rng := rand.New(rand.NewPCG(c.Seed, c.Seed^0x9e3779b97f4a7c15))
	scans := make([]Scan, c.Scans)
	for i := range scans {
		token := c.Tokens[rng.IntN(len(c.Tokens))]
		if rng.Float64() < c.UnknownRatio {
			token = fmt.Sprintf("sim%06d", i)
		}
		mode := model.ModeBlackMarket
		if rng.Float64() < c.DetectiveRatio {
			mode = model.ModeDetective
		}
		scans[i] = Scan{
			TokenID: token,
			TeamID:  TeamName(rng.IntN(c.Teams) + 1),
			Mode:    string(mode),
		}
	}
	return scans, nil
}

// TeamName formats a team number the way stations display it.
func TeamName(n int) string {
	return fmt.Sprintf("%03d", n)
}
