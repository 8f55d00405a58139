package sink

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ZephyrDeng/devprof-analyzer-mcp/analyzer"
	"github.com/ZephyrDeng/devprof-analyzer-mcp/trace"
)

const testLog = `h
h
0, 1, 1, BRISC, 1, 120
0, 1, 1, BRISC, 4, 900
0, 2, 1, BRISC, 1, 130
0, 2, 1, BRISC, 4, 700
`

func testResult(t *testing.T) *analyzer.Result {
	t.Helper()
	l, err := trace.ReadLog(strings.NewReader(testLog), trace.DefaultPreamble)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	specs := []trace.AnalysisSpec{{
		Name: "kernel", Scope: trace.ScopeUnit, Mode: trace.ModePaired,
		Start: trace.MarkerSpec{Marker: 1, Unit: "BRISC"},
		End:   trace.MarkerSpec{Marker: 4, Unit: "BRISC"},
	}}
	res, err := analyzer.Run(context.Background(), l, specs, analyzer.Options{SkipTimelines: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return res
}

func TestRows(t *testing.T) {
	rows := Rows("run-1", testResult(t))
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	want := Row{RunID: "run-1", Device: 0, X: 1, Y: 1, Unit: "BRISC", Analysis: "kernel", StartTS: 120, EndTS: 900, Value: 780}
	if rows[0] != want {
		t.Fatalf("expected %+v, got %+v", want, rows[0])
	}
}

func TestPostgresSinkWriteResult(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sink := NewPostgresSink(db, "duration_records")

	expectedQuery := regexp.QuoteMeta("INSERT INTO \"duration_records\" (run_id, device, loc_x, loc_y, unit, analysis, occurrence, start_ts, end_ts, value) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10),($11,$12,$13,$14,$15,$16,$17,$18,$19,$20) ON CONFLICT (run_id, device, loc_x, loc_y, unit, analysis, occurrence) DO NOTHING")
	mock.ExpectExec(expectedQuery).
		WithArgs(
			"run-1", int64(0), int64(1), int64(1), "BRISC", "kernel", int64(0), int64(120), int64(900), int64(780),
			"run-1", int64(0), int64(2), int64(1), "BRISC", "kernel", int64(0), int64(130), int64(700), int64(570),
		).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := sink.WriteResult(context.Background(), "run-1", testResult(t))
	if err != nil {
		t.Fatalf("write result: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows written, got %d", n)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresSinkBatches(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sink := NewPostgresSink(db, "runs")
	sink.batchSize = 1

	single := regexp.QuoteMeta("VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) ON CONFLICT")
	mock.ExpectExec(single).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(single).WillReturnError(errors.New("connection reset"))

	n, err := sink.WriteResult(context.Background(), "run-2", testResult(t))
	if err == nil {
		t.Fatalf("expected the second batch to fail")
	}
	if n != 1 {
		t.Fatalf("expected 1 row reported before the failure, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresSinkNoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sink := NewPostgresSink(db, "duration_records")
	if err := sink.WriteBatch(context.Background(), nil); err != nil {
		t.Fatalf("expected nil error for empty batch, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresSinkEnsureTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "duration_records" (`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	sink := NewPostgresSink(db, "duration_records")
	if err := sink.EnsureTable(context.Background()); err != nil {
		t.Fatalf("ensure table: %v", err)
	}
	if sink.Name() != "postgres" {
		t.Fatalf("expected sink name postgres, got %s", sink.Name())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresSinkQuotesTableName(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sink := NewPostgresSink(db, `records"; DROP TABLE runs; --`)
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "records""; DROP TABLE runs; --" (`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "records""; DROP TABLE runs; --" (run_id`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := sink.EnsureTable(context.Background()); err != nil {
		t.Fatalf("ensure table: %v", err)
	}
	row := Row{RunID: "run-3", Device: 0, X: 1, Y: 1, Unit: "BRISC", Analysis: "kernel", StartTS: 1, EndTS: 2, Value: 1}
	if err := sink.WriteBatch(context.Background(), []Row{row}); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
