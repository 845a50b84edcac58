package model_test

import (
	"testing"
	"time"

	model "github.com/okian/gmscan/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestTransaction(t *testing.T) {
	convey.Convey("Given a blackmarket transaction", t, func() {
		ts := time.Date(2026, 10, 19, 20, 0, 0, 0, time.UTC)
		tx := model.Transaction{
			TokenID:     "534e2b03",
			TeamID:      "001",
			DeviceID:    "GM_STATION_1",
			Mode:        model.ModeBlackMarket,
			Timestamp:   ts,
			MemoryType:  "Technical",
			ValueRating: 3,
		}

		convey.Convey("Then it should validate and be scored", func() {
			convey.So(tx.Validate(), convey.ShouldBeNil)
			convey.So(tx.Scored(), convey.ShouldBeTrue)
		})

		convey.Convey("When a second scan of the same token by the same team follows within a second", func() {
			other := tx
			other.Timestamp = ts.Add(900 * time.Millisecond)

			convey.Convey("Then both describe the same scan", func() {
				convey.So(tx.SameScan(&other), convey.ShouldBeTrue)
				convey.So(other.SameScan(&tx), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the second scan is a second or more later", func() {
			other := tx
			other.Timestamp = ts.Add(time.Second)

			convey.Convey("Then they are different scans", func() {
				convey.So(tx.SameScan(&other), convey.ShouldBeFalse)
			})
		})

		convey.Convey("When another team scans the same token at the same instant", func() {
			other := tx
			other.TeamID = "002"

			convey.Convey("Then they are different scans", func() {
				convey.So(tx.SameScan(&other), convey.ShouldBeFalse)
			})
		})

		convey.Convey("When fields are missing or out of range", func() {
			noToken := tx
			noToken.TokenID = " "
			noTeam := tx
			noTeam.TeamID = ""
			badMode := tx
			badMode.Mode = "arcade"
			badValue := tx
			badValue.ValueRating = 6

			convey.Convey("Then validation reports the matching error", func() {
				convey.So(noToken.Validate(), convey.ShouldEqual, model.ErrMissingToken)
				convey.So(noTeam.Validate(), convey.ShouldEqual, model.ErrMissingTeam)
				convey.So(badMode.Validate(), convey.ShouldEqual, model.ErrInvalidMode)
				convey.So(badValue.Validate(), convey.ShouldEqual, model.ErrInvalidValue)
			})
		})

		convey.Convey("When the transaction is a detective scan or unknown", func() {
			detective := tx
			detective.Mode = model.ModeDetective
			unknown := tx
			unknown.IsUnknown = true

			convey.Convey("Then it is not scored", func() {
				convey.So(detective.Scored(), convey.ShouldBeFalse)
				convey.So(unknown.Scored(), convey.ShouldBeFalse)
			})
		})
	})
}

func TestTeamScore(t *testing.T) {
	convey.Convey("Given a team score with adjustments", t, func() {
		score := model.TeamScore{
			TeamID:     "001",
			BaseScore:  7500,
			BonusScore: 15000,
			TotalScore: 22500,
			Adjustments: []model.Adjustment{
				{Delta: -500, Reason: "rule violation", Actor: "gm"},
				{Delta: 200, Reason: "bonus round", Actor: "gm"},
			},
		}

		convey.Convey("Then the adjusted total layers on top of the total", func() {
			convey.So(score.AdjustmentTotal(), convey.ShouldEqual, -300)
			convey.So(score.AdjustedTotal(), convey.ShouldEqual, 22200)
			convey.So(score.TotalScore, convey.ShouldEqual, score.BaseScore+score.BonusScore)
		})
	})
}

func TestEnvelope(t *testing.T) {
	convey.Convey("Given a submit request wrapped in an envelope", t, func() {
		req := model.SubmitRequest{
			SubmissionID: "sub-1",
			Transaction:  model.Transaction{TokenID: "tok", TeamID: "001", Mode: model.ModeDetective},
		}
		env, err := model.NewEnvelope(model.MsgTransactionSubmit, req)

		convey.Convey("Then the payload decodes back to the request", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(env.Type, convey.ShouldEqual, model.MsgTransactionSubmit)
			convey.So(env.Timestamp.IsZero(), convey.ShouldBeFalse)

			var decoded model.SubmitRequest
			convey.So(env.Decode(&decoded), convey.ShouldBeNil)
			convey.So(decoded.SubmissionID, convey.ShouldEqual, "sub-1")
			convey.So(decoded.Transaction.TokenID, convey.ShouldEqual, "tok")
			convey.So(decoded.Transaction.Mode, convey.ShouldEqual, model.ModeDetective)
		})
	})
}
