package catalog_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/gmscan/internal/catalog"
	"github.com/okian/gmscan/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

const doc = `{
  "534e2b03": {"SF_RFID": "534e2b03", "SF_ValueRating": 3, "SF_MemoryType": "Technical", "SF_Group": "Server Logs (x3)"},
  "tac001":   {"SF_ValueRating": 1, "SF_MemoryType": "Personal"}
}`

func write(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	Convey("Given a primary path and a backup path", t, func() {
		dir := t.TempDir()
		primary := filepath.Join(dir, "tokens.json")
		backup := write(t, dir, "tokens.json.backup", doc)

		Convey("When the primary is missing", func() {
			c, err := catalog.Load(primary, backup)

			Convey("Then the backup is used", func() {
				So(err, ShouldBeNil)
				So(c.Source(), ShouldEqual, backup)
				So(c.Len(), ShouldEqual, 2)
			})
		})

		Convey("When the primary exists", func() {
			write(t, dir, "tokens.json", `{"x": {"SF_RFID": "x", "SF_ValueRating": 1, "SF_MemoryType": "Personal", "SF_Group": ""}}`)
			c, err := catalog.Load(primary, backup)

			Convey("Then it wins", func() {
				So(err, ShouldBeNil)
				So(c.Source(), ShouldEqual, primary)
				So(c.Len(), ShouldEqual, 1)
			})
		})

		Convey("When the primary is malformed", func() {
			write(t, dir, "tokens.json", `[1,2`)
			_, err := catalog.Load(primary, backup)

			Convey("Then loading fails instead of silently falling back", func() {
				So(errors.Is(err, catalog.ErrMalformed), ShouldBeTrue)
			})
		})

		Convey("When no path exists", func() {
			_, err := catalog.Load(primary, filepath.Join(dir, "nope"))
			So(errors.Is(err, catalog.ErrNoCatalog), ShouldBeTrue)
		})
	})
}

func TestCatalog(t *testing.T) {
	Convey("Given a parsed catalog", t, func() {
		c, err := catalog.Parse([]byte(doc))
		So(err, ShouldBeNil)

		Convey("Tokens without SF_RFID take their key", func() {
			tok, ok := c.Lookup("tac001")
			So(ok, ShouldBeTrue)
			So(tok.RFID, ShouldEqual, "tac001")
		})

		Convey("Verify reports missing fields in token order", func() {
			issues := c.Verify()
			So(issues, ShouldResemble, []catalog.Issue{
				{TokenID: "tac001", Field: "SF_RFID"},
				{TokenID: "tac001", Field: "SF_Group"},
			})
			So(issues[0].String(), ShouldEqual, "tac001.SF_RFID")
		})

		Convey("Enrich copies catalog fields", func() {
			tx := model.Transaction{TokenID: "534e2b03"}
			c.Enrich(&tx)
			So(tx.IsUnknown, ShouldBeFalse)
			So(tx.ValueRating, ShouldEqual, 3)
			So(tx.MemoryType, ShouldEqual, "Technical")
			So(tx.Group, ShouldEqual, "Server Logs (x3)")
		})

		Convey("Enrich marks unknown tokens", func() {
			tx := model.Transaction{TokenID: "ghost", ValueRating: 5}
			c.Enrich(&tx)
			So(tx.IsUnknown, ShouldBeTrue)
			So(tx.ValueRating, ShouldEqual, 0)
			So(tx.MemoryType, ShouldEqual, catalog.UnknownMemoryType)
		})

		Convey("Tokens are sorted by ID", func() {
			tokens := c.Tokens()
			So(len(tokens), ShouldEqual, 2)
			So(tokens[0].RFID, ShouldEqual, "534e2b03")
			So(c.TokenIDs(), ShouldResemble, []string{"534e2b03", "tac001"})
		})
	})

	Convey("Given the shipped catalog", t, func() {
		c, err := catalog.Load(filepath.Join("..", "..", "data", "tokens.json"))
		So(err, ShouldBeNil)
		So(c.Verify(), ShouldBeEmpty)
	})
}
