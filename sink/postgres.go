package sink

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/lib/pq"

	"github.com/ZephyrDeng/devprof-analyzer-mcp/analyzer"
)

// rowColumns is the column list of the duration record table.
const rowColumns = "run_id, device, loc_x, loc_y, unit, analysis, occurrence, start_ts, end_ts, value"

const columnsPerRow = 10

// DefaultBatchSize keeps a single INSERT well below the 65535 bind parameter
// limit of the Postgres protocol.
const DefaultBatchSize = 1000

// Row is one duration record as stored in the database.
type Row struct {
	RunID      string
	Device     int
	X, Y       int
	Unit       string
	Analysis   string
	Occurrence int
	StartTS    uint64
	EndTS      uint64
	Value      uint64
}

// Rows flattens every duration record of res. Occurrence is the index of the
// record within its analysis on that series.
func Rows(runID string, res *analyzer.Result) []Row {
	var rows []Row
	for _, dr := range res.Devices {
		views := append(append([]*analyzer.LocationResult(nil), dr.Locations...), dr.Device)
		for _, lr := range views {
			if lr == nil {
				continue
			}
			for _, ur := range lr.Units {
				for _, spec := range res.Specs {
					ar, ok := ur.Analysis[spec.Name]
					if !ok {
						continue
					}
					for i, rec := range ar.Records {
						rows = append(rows, Row{
							RunID:      runID,
							Device:     dr.ID,
							X:          lr.Location.X,
							Y:          lr.Location.Y,
							Unit:       ur.Unit,
							Analysis:   spec.Name,
							Occurrence: i,
							StartTS:    rec.StartTS,
							EndTS:      rec.EndTS,
							Value:      rec.Value,
						})
					}
				}
			}
		}
	}
	return rows
}

// PostgresSink stores duration records in a Postgres table.
type PostgresSink struct {
	db        *sql.DB
	tableName string
	batchSize int
}

// NewPostgresSink writes to table in db. The table name is quoted as an
// identifier, so it is taken verbatim and case-sensitively.
func NewPostgresSink(db *sql.DB, table string) *PostgresSink {
	return &PostgresSink{db: db, tableName: table, batchSize: DefaultBatchSize}
}

// Open connects to Postgres through lib/pq and verifies the connection.
func Open(ctx context.Context, connString string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Name identifies the sink in logs.
func (p *PostgresSink) Name() string { return "postgres" }

// EnsureTable creates the record table if it does not exist yet.
func (p *PostgresSink) EnsureTable(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS "+pq.QuoteIdentifier(p.tableName)+` (
	run_id TEXT NOT NULL,
	device INTEGER NOT NULL,
	loc_x INTEGER NOT NULL,
	loc_y INTEGER NOT NULL,
	unit TEXT NOT NULL,
	analysis TEXT NOT NULL,
	occurrence INTEGER NOT NULL,
	start_ts BIGINT NOT NULL,
	end_ts BIGINT NOT NULL,
	value BIGINT NOT NULL,
	PRIMARY KEY (run_id, device, loc_x, loc_y, unit, analysis, occurrence)
)`)
	return err
}

// WriteResult stores every record of res under runID and returns how many
// rows were sent.
func (p *PostgresSink) WriteResult(ctx context.Context, runID string, res *analyzer.Result) (int, error) {
	rows := Rows(runID, res)
	for start := 0; start < len(rows); start += p.batchSize {
		end := start + p.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := p.WriteBatch(ctx, rows[start:end]); err != nil {
			return start, err
		}
	}
	log.Printf("Wrote %d duration records to %s", len(rows), p.tableName)
	return len(rows), nil
}

// WriteBatch inserts rows with a single statement. Rows already stored for
// the same run are skipped.
func (p *PostgresSink) WriteBatch(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pq.QuoteIdentifier(p.tableName))
	b.WriteString(" (" + rowColumns + ") VALUES ")

	args := make([]any, 0, len(rows)*columnsPerRow)
	for i, r := range rows {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(")
		for c := 1; c <= columnsPerRow; c++ {
			if c > 1 {
				b.WriteString(",")
			}
			b.WriteString(fmt.Sprintf("$%d", len(args)+c))
		}
		b.WriteString(")")

		args = append(args,
			r.RunID,
			r.Device,
			r.X,
			r.Y,
			r.Unit,
			r.Analysis,
			r.Occurrence,
			int64(r.StartTS),
			int64(r.EndTS),
			int64(r.Value),
		)
	}

	b.WriteString(" ON CONFLICT (run_id, device, loc_x, loc_y, unit, analysis, occurrence) DO NOTHING")

	_, err := p.db.ExecContext(ctx, b.String(), args...)
	return err
}
