package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/tourney-ingest/internal/adapters/repository"
	"github.com/okian/tourney-ingest/internal/adapters/repository/postgres/migrations"
)

func TestMapError(t *testing.T) {
	Convey("Given driver errors", t, func() {
		cases := []struct {
			code     string
			conflict bool
		}{
			{codeUniqueViolation, true},
			{codeSerializationFailure, true},
			{codeDeadlockDetected, true},
			{"23503", false},
			{"42P01", false},
		}
		for _, tc := range cases {
			err := mapError("op", fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: tc.code}))
			So(errors.Is(err, repository.ErrConflict), ShouldEqual, tc.conflict)
			var pgErr *pgconn.PgError
			So(errors.As(err, &pgErr), ShouldBeTrue)
		}

		Convey("Non-driver errors are wrapped but not conflicts", func() {
			err := mapError("op", errors.New("closed"))
			So(errors.Is(err, repository.ErrConflict), ShouldBeFalse)
			So(err.Error(), ShouldEqual, "op: closed")
		})
	})
}

func TestMigrationNames(t *testing.T) {
	Convey("Embedded migrations are listed in apply order", t, func() {
		names := migrations.Names()
		So(len(names), ShouldBeGreaterThanOrEqualTo, 2)
		So(names[0], ShouldEqual, "0001_venues_tournaments.sql")
		for i := 1; i < len(names); i++ {
			So(names[i-1] < names[i], ShouldBeTrue)
		}
	})
}
