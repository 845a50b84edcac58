package scoring_test

import (
	"testing"
	"time"

	"github.com/okian/gmscan/internal/domain/model"
	scoring "github.com/okian/gmscan/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func blackmarket(team, token, memoryType, group string, rating int) model.Transaction {
	return model.Transaction{
		ID:          team + "-" + token,
		TokenID:     token,
		TeamID:      team,
		Mode:        model.ModeBlackMarket,
		Timestamp:   time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		MemoryType:  memoryType,
		Group:       group,
		ValueRating: rating,
	}
}

func TestParseGroupInfo(t *testing.T) {
	Convey("Given group strings from the catalog", t, func() {
		Convey("A suffix sets the multiplier", func() {
			So(scoring.ParseGroupInfo("Server Logs (x5)"), ShouldResemble, model.GroupInfo{Name: "Server Logs", Multiplier: 5})
		})

		Convey("No suffix means multiplier 1", func() {
			So(scoring.ParseGroupInfo("No Suffix"), ShouldResemble, model.GroupInfo{Name: "No Suffix", Multiplier: 1})
		})

		Convey("A zero or negative multiplier falls back to 1", func() {
			So(scoring.ParseGroupInfo("Bad (x0)"), ShouldResemble, model.GroupInfo{Name: "Bad", Multiplier: 1})
			So(scoring.ParseGroupInfo("Worse (x-2)"), ShouldResemble, model.GroupInfo{Name: "Worse", Multiplier: 1})
		})

		Convey("An uppercase X is accepted", func() {
			So(scoring.ParseGroupInfo("Marcus Sucks (X2)"), ShouldResemble, model.GroupInfo{Name: "Marcus Sucks", Multiplier: 2})
		})

		Convey("An empty group has no name", func() {
			So(scoring.ParseGroupInfo(""), ShouldResemble, model.GroupInfo{Name: "", Multiplier: 1})
		})
	})
}

func TestNormalizeGroupName(t *testing.T) {
	Convey("Given inconsistently authored group names", t, func() {
		So(scoring.NormalizeGroupName("  Marcus’s   Secrets "), ShouldEqual, "marcus's secrets")
		So(scoring.NormalizeGroupName("MARCUS'S SECRETS"), ShouldEqual, "marcus's secrets")
		So(scoring.NormalizeGroupName("Server\tLogs"), ShouldEqual, "server logs")
	})
}

func TestTokenValue(t *testing.T) {
	Convey("Given a default engine", t, func() {
		engine := scoring.NewEngine()

		Convey("Value is base times type multiplier", func() {
			tx := blackmarket("001", "a", "Technical", "", 3)
			So(engine.TokenValue(&tx), ShouldEqual, 5000)
			tx = blackmarket("001", "b", "business", "", 1)
			So(engine.TokenValue(&tx), ShouldEqual, 300)
		})

		Convey("Unknown types and unknown tokens are worth nothing", func() {
			tx := blackmarket("001", "a", "UNKNOWN", "", 5)
			So(engine.TokenValue(&tx), ShouldEqual, 0)
			tx = blackmarket("001", "b", "Technical", "", 5)
			tx.IsUnknown = true
			So(engine.TokenValue(&tx), ShouldEqual, 0)
		})

		Convey("Unlisted types use multiplier 1 and unlisted ratings are 0", func() {
			tx := blackmarket("001", "a", "Mystery", "", 4)
			So(engine.TokenValue(&tx), ShouldEqual, 5000)
			tx = blackmarket("001", "b", "Personal", "", 0)
			So(engine.TokenValue(&tx), ShouldEqual, 0)
		})

		Convey("Custom tables replace the defaults", func() {
			custom := scoring.NewEngine(
				scoring.WithBaseValues(map[int]int{1: 7}),
				scoring.WithTypeMultipliers(map[string]int{"Personal": 2}),
			)
			tx := blackmarket("001", "a", "personal", "", 1)
			So(custom.TokenValue(&tx), ShouldEqual, 14)
		})
	})
}

func TestCompletedGroups(t *testing.T) {
	Convey("Given a two-token group at multiplier 5", t, func() {
		engine := scoring.NewEngine(scoring.WithCatalog([]model.Token{
			{RFID: "a", ValueRating: 1, MemoryType: "Personal", Group: "Server Logs (x5)"},
			{RFID: "b", ValueRating: 2, MemoryType: "Personal", Group: "server  logs (x5)"},
			{RFID: "solo", ValueRating: 1, MemoryType: "Personal", Group: "Alone (x4)"},
			{RFID: "c", ValueRating: 1, MemoryType: "Personal", Group: "Plain"},
			{RFID: "d", ValueRating: 1, MemoryType: "Personal", Group: "Plain"},
		}))

		Convey("Owning one token completes nothing", func() {
			So(engine.CompletedGroups([]string{"a"}), ShouldBeEmpty)

			score := engine.TeamScore("001", []model.Transaction{
				blackmarket("001", "a", "Personal", "Server Logs (x5)", 1),
			})
			So(score.BonusScore, ShouldEqual, 0)
			So(score.TotalScore, ShouldEqual, 100)
		})

		Convey("Owning both tokens completes the group", func() {
			So(engine.CompletedGroups([]string{"a", "b"}), ShouldResemble, []string{"server logs"})

			score := engine.TeamScore("001", []model.Transaction{
				blackmarket("001", "a", "Personal", "Server Logs (x5)", 1),
				blackmarket("001", "b", "Personal", "Server Logs (x5)", 2),
			})
			So(score.BaseScore, ShouldEqual, 600)
			So(score.BonusScore, ShouldEqual, (5-1)*600)
			So(score.CompletedGroups, ShouldResemble, []string{"server logs"})
		})

		Convey("Single-token and multiplier-1 groups never complete", func() {
			So(engine.CompletedGroups([]string{"solo", "c", "d"}), ShouldBeEmpty)
		})
	})
}

func TestTeamScore(t *testing.T) {
	Convey("Given two technical tokens sharing a group", t, func() {
		engine := scoring.NewEngine(scoring.WithCatalog([]model.Token{
			{RFID: "tac001", ValueRating: 3, MemoryType: "Technical", Group: "Server Logs"},
			{RFID: "tac002", ValueRating: 2, MemoryType: "Technical", Group: "Server Logs (x3)"},
		}))
		txs := []model.Transaction{
			blackmarket("001", "tac001", "Technical", "Server Logs", 3),
			blackmarket("001", "tac002", "Technical", "Server Logs (x3)", 2),
		}

		Convey("Completing the group scores 22500", func() {
			score := engine.TeamScore("001", txs)
			So(score.BaseScore, ShouldEqual, 7500)
			So(score.BonusScore, ShouldEqual, 15000)
			So(score.TotalScore, ShouldEqual, 22500)
			So(score.TokensScanned, ShouldEqual, 2)
		})

		Convey("Recomputing is identical", func() {
			So(engine.TeamScore("001", txs), ShouldResemble, engine.TeamScore("001", txs))
		})

		Convey("Detective scans count but do not score", func() {
			detective := blackmarket("001", "tac002", "Technical", "Server Logs (x3)", 2)
			detective.Mode = model.ModeDetective
			score := engine.TeamScore("001", []model.Transaction{txs[0], detective})
			So(score.TokensScanned, ShouldEqual, 2)
			So(score.BaseScore, ShouldEqual, 5000)
			So(score.BonusScore, ShouldEqual, 0)
		})

		Convey("Other teams are ignored", func() {
			other := blackmarket("002", "tac002", "Technical", "Server Logs (x3)", 2)
			score := engine.TeamScore("001", []model.Transaction{txs[0], other})
			So(score.TokensScanned, ShouldEqual, 1)
			So(score.TotalScore, ShouldEqual, 5000)
		})
	})
}
