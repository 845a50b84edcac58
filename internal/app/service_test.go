package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/gmscan/internal/adapters/kv"
	"github.com/okian/gmscan/internal/adapters/mq/queue"
	"github.com/okian/gmscan/internal/adapters/repository"
	service "github.com/okian/gmscan/internal/app"
	"github.com/okian/gmscan/internal/catalog"
	"github.com/okian/gmscan/internal/delivery"
	"github.com/okian/gmscan/internal/domain/model"
	"github.com/okian/gmscan/pkg/logger"
	"github.com/sebdah/goldie/v2"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func testCatalog() *catalog.Catalog {
	return catalog.New(
		model.Token{RFID: "tac001", ValueRating: 3, MemoryType: "Technical", Group: "Server Logs"},
		model.Token{RFID: "tac002", ValueRating: 2, MemoryType: "Technical", Group: "Server Logs (x3)"},
		model.Token{RFID: "bus001", ValueRating: 3, MemoryType: "Business"},
		model.Token{RFID: "bus002", ValueRating: 4, MemoryType: "Business"},
		model.Token{RFID: "per001", ValueRating: 1, MemoryType: "Personal"},
	)
}

func newService(opts ...service.Option) *service.Service {
	opts = append([]service.Option{
		service.WithCatalog(testCatalog()),
		service.WithClock(func() time.Time { return t0 }),
	}, opts...)
	return service.New(opts...)
}

// orchestrator accepts every submission and answers through the service.
type orchestrator struct {
	connected atomic.Bool
	svc       *service.Service

	mu   sync.Mutex
	sent []string
}

func (o *orchestrator) Connected() bool { return o.connected.Load() }

func (o *orchestrator) Send(_ context.Context, env model.Envelope) error {
	var req model.SubmitRequest
	if err := env.Decode(&req); err != nil {
		return err
	}
	o.mu.Lock()
	o.sent = append(o.sent, req.Transaction.TokenID)
	o.mu.Unlock()

	reply, err := model.NewEnvelope(model.MsgTransactionResult, model.SubmitResult{
		SubmissionID: req.SubmissionID,
		TokenID:      req.Transaction.TokenID,
		TeamID:       req.Transaction.TeamID,
		Status:       model.StatusAccepted,
	})
	if err != nil {
		return err
	}
	go o.svc.HandleMessage(context.Background(), reply)
	return nil
}

func (o *orchestrator) tokens() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.sent...)
}

func scan(token, team string) service.ScanRequest {
	return service.ScanRequest{TokenID: token, TeamID: team, Mode: model.ModeBlackMarket}
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a service that has not been started", t, func() {
		ctx := context.Background()
		svc := newService()

		Convey("Then operations fail with ErrNotStarted", func() {
			_, err := svc.ProcessScan(ctx, scan("tac001", "001"))
			So(err, ShouldEqual, service.ErrNotStarted)
			So(svc.AttachDelivery(ctx, &orchestrator{}), ShouldEqual, service.ErrNotStarted)
			So(svc.Queue(), ShouldBeNil)
		})

		Convey("When it is started twice and stopped", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.GetStats()["started"], ShouldBeTrue)
			svc.Stop()

			Convey("Then it reports stopped", func() {
				So(svc.GetStats()["started"], ShouldBeFalse)
			})
		})
	})
}

func TestService_ProcessScanStandalone(t *testing.T) {
	Convey("Given a started standalone service", t, func() {
		ctx := context.Background()
		svc := newService()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When a known token is scanned", func() {
			res, err := svc.ProcessScan(ctx, scan("tac001", "001"))
			So(err, ShouldBeNil)

			Convey("Then it is accepted locally and scored", func() {
				So(res.Outcome, ShouldEqual, service.OutcomeAccepted)
				So(res.Delivery, ShouldEqual, service.DeliveryLocal)
				So(res.Points, ShouldEqual, 5000)
				So(res.Transaction.ID, ShouldNotBeEmpty)
				So(res.Transaction.DeviceID, ShouldEqual, "GM_STATION")
				So(res.Transaction.Timestamp.Equal(t0), ShouldBeTrue)
				So(res.TeamScore, ShouldNotBeNil)
				So(res.TeamScore.TotalScore, ShouldEqual, 5000)
			})

			Convey("Then a second scan of the token by any team is a duplicate", func() {
				dup, err := svc.ProcessScan(ctx, scan("tac001", "002"))
				So(err, ShouldBeNil)
				So(dup.Outcome, ShouldEqual, service.OutcomeDuplicate)

				stats, err := svc.GetSessionStats(ctx)
				So(err, ShouldBeNil)
				So(stats.RejectedByGuard, ShouldEqual, 1)
				So(stats.TotalScans, ShouldEqual, 1)
				So(stats.Connected, ShouldBeFalse)
			})

			Convey("Then deleting the transaction makes the token scannable again", func() {
				removed, err := svc.DeleteTransaction(ctx, res.Transaction.ID)
				So(err, ShouldBeNil)
				So(removed.TokenID, ShouldEqual, "tac001")

				again, err := svc.ProcessScan(ctx, scan("tac001", "002"))
				So(err, ShouldBeNil)
				So(again.Outcome, ShouldEqual, service.OutcomeAccepted)

				txs, err := svc.GetTeamTransactions(ctx, "001")
				So(err, ShouldBeNil)
				So(txs, ShouldBeEmpty)
			})
		})

		Convey("When an unknown token is scanned", func() {
			res, err := svc.ProcessScan(ctx, scan("nope", "001"))
			So(err, ShouldBeNil)

			Convey("Then it is recorded with zero points", func() {
				So(res.Outcome, ShouldEqual, service.OutcomeAccepted)
				So(res.Points, ShouldEqual, 0)
				So(res.Transaction.IsUnknown, ShouldBeTrue)
				So(res.Transaction.MemoryType, ShouldEqual, catalog.UnknownMemoryType)
			})
		})

		Convey("When the request is invalid", func() {
			_, err := svc.ProcessScan(ctx, service.ScanRequest{TokenID: "tac001", Mode: model.ModeBlackMarket})

			Convey("Then it is rejected without claiming the token", func() {
				So(errors.Is(err, repository.ErrInvalidTransaction), ShouldBeTrue)
				res, err := svc.ProcessScan(ctx, scan("tac001", "001"))
				So(err, ShouldBeNil)
				So(res.Outcome, ShouldEqual, service.OutcomeAccepted)
			})
		})

		Convey("Then delivery operations need an orchestrator", func() {
			_, err := svc.Flush(ctx)
			So(err, ShouldEqual, service.ErrNotNetworked)
			_, err = svc.UploadBacklog(ctx)
			So(err, ShouldEqual, service.ErrNotNetworked)
			_, err = svc.Import(ctx, nil)
			So(err, ShouldEqual, service.ErrNotNetworked)
		})
	})
}

func TestService_Delivery(t *testing.T) {
	Convey("Given a networked service", t, func() {
		ctx := context.Background()
		svc := newService(service.WithNetworked(true))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When a scan happens before delivery is attached", func() {
			res, err := svc.ProcessScan(ctx, scan("tac001", "001"))
			So(err, ShouldBeNil)
			So(res.Delivery, ShouldEqual, service.DeliveryOrphaned)
			So(svc.Queue().Len(), ShouldEqual, 0)

			Convey("Then attaching delivery merges it into the backlog", func() {
				ch := &orchestrator{svc: svc}
				So(svc.AttachDelivery(ctx, ch), ShouldBeNil)

				entries, err := svc.Backlog(ctx)
				So(err, ShouldBeNil)
				So(entries, ShouldHaveLength, 1)
				So(entries[0].Transaction.TokenID, ShouldEqual, "tac001")
				So(entries[0].Reason, ShouldEqual, model.ReasonOrphaned)
			})
		})

		Convey("When delivery is attached", func() {
			ch := &orchestrator{svc: svc}
			So(svc.AttachDelivery(ctx, ch, delivery.WithAckTimeout(time.Second)), ShouldBeNil)

			Convey("Then scans while connected are delivered live", func() {
				ch.connected.Store(true)
				res, err := svc.ProcessScan(ctx, scan("tac001", "001"))
				So(err, ShouldBeNil)
				So(res.Delivery, ShouldEqual, service.DeliveryDelivered)
				So(ch.tokens(), ShouldResemble, []string{"tac001"})
				So(svc.Queue().Len(), ShouldEqual, 0)
			})

			Convey("Then scans while offline are queued and flushed in order on reconnect", func() {
				for _, tok := range []string{"tac001", "tac002", "bus001"} {
					res, err := svc.ProcessScan(ctx, scan(tok, "001"))
					So(err, ShouldBeNil)
					So(res.Delivery, ShouldEqual, service.DeliveryQueued)
				}
				So(svc.Queue().Len(), ShouldEqual, 3)

				ch.connected.Store(true)
				report, err := svc.Flush(ctx)
				So(err, ShouldBeNil)
				So(report.Delivered, ShouldEqual, 3)
				So(ch.tokens(), ShouldResemble, []string{"tac001", "tac002", "bus001"})
				So(svc.Queue().Len(), ShouldEqual, 0)

				stats, err := svc.GetSessionStats(ctx)
				So(err, ShouldBeNil)
				So(stats.QueuedScans, ShouldEqual, 3)
				So(stats.Connected, ShouldBeTrue)
			})

			Convey("Then a score update from the orchestrator is cached", func() {
				env, err := model.NewEnvelope(model.MsgScoreUpdated, model.ScoreUpdate{
					TeamID: "001", CurrentScore: 22500, LastUpdate: t0,
				})
				So(err, ShouldBeNil)
				svc.HandleMessage(ctx, env)

				scores, err := svc.AuthoritativeScores(ctx)
				So(err, ShouldBeNil)
				So(scores, ShouldHaveLength, 1)
				So(scores[0].CurrentScore, ShouldEqual, 22500)
			})
		})
	})
}

func TestService_BacklogFull(t *testing.T) {
	Convey("Given an offline service whose backlog holds one entry", t, func() {
		ctx := context.Background()
		svc := newService(service.WithNetworked(true), service.WithBacklogCapacity(1))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()
		ch := &orchestrator{svc: svc}
		So(svc.AttachDelivery(ctx, ch, delivery.WithAckTimeout(time.Second)), ShouldBeNil)

		res, err := svc.ProcessScan(ctx, scan("tac001", "001"))
		So(err, ShouldBeNil)
		So(res.Delivery, ShouldEqual, service.DeliveryQueued)

		Convey("When another scan cannot be queued", func() {
			_, err := svc.ProcessScan(ctx, scan("bus001", "002"))
			So(errors.Is(err, queue.ErrFull), ShouldBeTrue)

			Convey("Then it leaves no history entry and no claim", func() {
				txs, err := svc.Transactions(ctx)
				So(err, ShouldBeNil)
				So(txs, ShouldHaveLength, 1)
				So(txs[0].TokenID, ShouldEqual, "tac001")
				So(svc.GetStats()["claimedTokens"], ShouldEqual, 1)

				teams, err := svc.GetTeamScores(ctx)
				So(err, ShouldBeNil)
				So(teams, ShouldHaveLength, 1)
			})

			Convey("Then a retry is accepted once the backlog drains", func() {
				ch.connected.Store(true)
				report, err := svc.Flush(ctx)
				So(err, ShouldBeNil)
				So(report.Delivered, ShouldEqual, 1)

				ch.connected.Store(false)
				res, err := svc.ProcessScan(ctx, scan("bus001", "002"))
				So(err, ShouldBeNil)
				So(res.Outcome, ShouldEqual, service.OutcomeAccepted)
				So(res.Delivery, ShouldEqual, service.DeliveryQueued)
				So(svc.Queue().Len(), ShouldEqual, 1)
			})
		})
	})
}

func TestService_Restart(t *testing.T) {
	Convey("Given a service backed by a bolt file", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "state.db")

		store, err := kv.NewBolt(path)
		So(err, ShouldBeNil)
		svc := newService(service.WithStore(store))
		So(svc.Start(ctx), ShouldBeNil)
		_, err = svc.ProcessScan(ctx, scan("tac001", "001"))
		So(err, ShouldBeNil)
		svc.Stop()

		Convey("When it is restarted on the same file", func() {
			store, err := kv.NewBolt(path)
			So(err, ShouldBeNil)
			svc := newService(service.WithStore(store))
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()

			Convey("Then history and claims survive", func() {
				txs, err := svc.Transactions(ctx)
				So(err, ShouldBeNil)
				So(txs, ShouldHaveLength, 1)

				res, err := svc.ProcessScan(ctx, scan("tac001", "002"))
				So(err, ShouldBeNil)
				So(res.Outcome, ShouldEqual, service.OutcomeDuplicate)
			})
		})
	})
}

func TestService_TeamScoresGolden(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	if err := svc.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer svc.Stop()

	for _, req := range []service.ScanRequest{
		scan("tac001", "001"),
		scan("tac002", "001"),
		scan("bus002", "003"),
		scan("per001", "002"),
		{TokenID: "bus001", TeamID: "002", Mode: model.ModeDetective},
	} {
		if _, err := svc.ProcessScan(ctx, req); err != nil {
			t.Fatalf("scan %s: %v", req.TokenID, err)
		}
	}
	if _, err := svc.AddAdjustment(ctx, "002", model.Adjustment{Delta: -50, Reason: "late", Actor: "gm"}); err != nil {
		t.Fatal(err)
	}

	ranked, err := svc.GetTeamScores(ctx)
	if err != nil {
		t.Fatal(err)
	}
	got, err := json.MarshalIndent(ranked, "", "  ")
	if err != nil {
		t.Fatal(err)
	}

	g := goldie.New(t, goldie.WithFixtureDir("testdata"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "team_scores", append(got, '\n'))
}
