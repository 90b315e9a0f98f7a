package extractors

import (
	"context"
	"fmt"
	"strings"
	"time"

	"plexingest/internal/adapters/plex"
	"plexingest/internal/core/canon"
	"plexingest/internal/core/timeparse"
	perr "plexingest/internal/platform/errors"
	"plexingest/internal/platform/logger"
	"plexingest/internal/services/ingest/domain"
)

// dsSpec describes one quality datasource: its id, display name, the
// recordType stamped on emitted rows, and the input template it expects
type dsSpec struct {
	ID         int
	Name       string
	RecordType string
	Inputs     map[string]any
	ExpectsXML bool
}

// controlPlanDiscoveryID lists control plan keys; each key is then fed to
// Control_Plan_Get individually
const controlPlanDiscoveryID = 17981

// qualityCatalog is the fixed set of datasources the quality extractor
// walks every cycle
var qualityCatalog = []dsSpec{
	{ID: 2199, Name: "Specification_List", RecordType: "specifications", Inputs: map[string]any{}},
	{ID: 17473, Name: "Specification_Detail_Get", RecordType: "specification_details",
		Inputs: map[string]any{"Containers": "", "Specification_Key": 0}},
	{ID: 81, Name: "Inspection_Mode_List", RecordType: "inspection_modes", Inputs: map[string]any{}},
	{ID: 30949, Name: "Quality_Audit_List", RecordType: "audits", Inputs: map[string]any{}},
	{ID: 2998, Name: "Gauge_List", RecordType: "gauges", Inputs: map[string]any{}},
	{ID: 21773, Name: "Gauge_Calibration_List", RecordType: "gauge_calibrations", Inputs: map[string]any{}},
	{ID: 4142, Name: "Checksheet_Get", RecordType: "checksheets", Inputs: map[string]any{"Checksheet_No": -1}},
	{ID: 18718, Name: "Checklist_Get", RecordType: "checklists", Inputs: map[string]any{"Checklist_No": -1}},
	{ID: 7262, Name: "Control_Plan_Get", RecordType: "control_plans", Inputs: nil}, // inputs discovered per key
	{ID: 6456, Name: "Nonconformance_List", RecordType: "nonconformances", Inputs: map[string]any{}, ExpectsXML: true},
	{ID: 19938, Name: "Supplier_Quality_List", RecordType: "supplier_quality", Inputs: map[string]any{}},
	{ID: 2158, Name: "Problem_Report_List", RecordType: "problem_reports", Inputs: map[string]any{}},
	{ID: 15387, Name: "Corrective_Action_List", RecordType: "corrective_actions", Inputs: map[string]any{}},
	{ID: 5112, Name: "Document_Control_List", RecordType: "documents", Inputs: map[string]any{}},
}

// Quality walks the datasource catalog and emits one record per result
// row. A failed execution is logged and skipped so one broken datasource
// never starves the rest of the catalog
type Quality struct {
	Shared
	DS        *plex.DataSource
	BatchSize int
	DaysBack  int
	StartDate time.Time // optional fixed cold-start floor
	log       logger.Logger
}

// NewQuality builds the quality extractor over the DataSource client
func NewQuality(sh Shared, ds *plex.DataSource, batchSize, daysBack int, startDate time.Time) *Quality {
	return &Quality{
		Shared:    sh,
		DS:        ds,
		BatchSize: dsPager(batchSize),
		DaysBack:  daysBack,
		StartDate: startDate,
		log:       *logger.Named("quality"),
	}
}

func (e *Quality) Name() string     { return "quality" }
func (e *Quality) RawTable() string { return "quality" }

// FetchRecords executes every catalog entry and flattens the tabular
// results into records keyed by position
func (e *Quality) FetchRecords(ctx context.Context, since time.Time) ([]domain.Record, error) {
	if since.IsZero() {
		if !e.StartDate.IsZero() {
			since = e.StartDate
		} else {
			since = e.now().UTC().AddDate(0, 0, -e.DaysBack)
		}
	}

	var out []domain.Record
	for _, spec := range qualityCatalog {
		inputs, err := e.inputsFor(ctx, spec)
		if err != nil {
			e.log.Warn().Int("datasource_id", spec.ID).Err(err).Msg("input discovery failed, skipping")
			continue
		}
		for _, in := range inputs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			res, err := e.DS.Execute(ctx, spec.ID, in)
			if err != nil {
				e.log.Warn().Int("datasource_id", spec.ID).Str("name", spec.Name).Err(err).
					Msg("datasource execute failed, skipping")
				continue
			}
			out = append(out, e.buildRecords(spec, in, res, since)...)
		}
	}
	return out, nil
}

// inputsFor resolves the input list for a spec. Control plans are
// expanded into one execution per discovered plan key
func (e *Quality) inputsFor(ctx context.Context, spec dsSpec) ([]map[string]any, error) {
	if spec.ID != 7262 {
		return []map[string]any{spec.Inputs}, nil
	}

	res, err := e.DS.Execute(ctx, controlPlanDiscoveryID, map[string]any{"RowLimit": e.BatchSize})
	if err != nil {
		return nil, err
	}

	var inputs []map[string]any
	for _, tbl := range res.Tables {
		keyCol := -1
		for i, col := range tbl.Columns {
			if col == "Control_Plan_Key" {
				keyCol = i
				break
			}
		}
		if keyCol < 0 {
			continue
		}
		for _, row := range tbl.Rows {
			if keyCol < len(row) && row[keyCol] != nil {
				inputs = append(inputs, map[string]any{"Control_Plan_Key": row[keyCol]})
			}
		}
	}
	return inputs, nil
}

// buildRecords turns one execution result into records. Tables become one
// record per row; a table-less response becomes a single synthetic record
func (e *Quality) buildRecords(spec dsSpec, inputs map[string]any, res *plex.DSResult, since time.Time) []domain.Record {
	txn := res.TransactionNo
	if txn == "" {
		txn = "no_transaction"
	}
	keyTxn := strings.ReplaceAll(txn, ":", "-")

	stampRec := func(rec domain.Record, tableIdx, rowIdx int) {
		rec["rawKey"] = fmt.Sprintf("%s:%d:%s:%d:%d", spec.RecordType, spec.ID, keyTxn, tableIdx, rowIdx)
		rec["recordType"] = spec.RecordType
		rec["dataSourceId"] = spec.ID
		rec["dataSourceName"] = spec.Name
		rec["tableIndex"] = tableIdx
		rec["rowIndex"] = rowIdx
		rec["transactionNo"] = txn
		rec["rowLimitedExceeded"] = res.RowLimitExceeded
		rec["inputs"] = inputs
		rec["timestamp"] = timeparse.Format(e.now())
	}

	if len(res.Tables) == 0 {
		rec := domain.Record{}
		stampRec(rec, -1, 0)
		if len(res.Outputs) > 0 {
			for k, v := range res.Outputs {
				rec[k] = v
			}
		} else if raw, ok := res.Body["raw"]; ok {
			rec["rawPayload"] = raw
			if !spec.ExpectsXML {
				e.log.Warn().Int("datasource_id", spec.ID).Str("name", spec.Name).
					Msg("non-JSON response from a JSON datasource")
			}
		}
		return []domain.Record{rec}
	}

	var out []domain.Record
	for ti, tbl := range res.Tables {
		for ri, row := range tbl.Rows {
			rec := domain.Record{}
			stampRec(rec, ti, ri)
			for ci, col := range tbl.Columns {
				if ci < len(row) {
					rec[col] = row[ci]
				} else {
					rec[col] = nil
				}
			}
			if !rowCurrent(tbl.Columns, row, since) {
				continue
			}
			out = append(out, rec)
		}
	}
	return out
}

// rowCurrent applies the incremental cut on the first parseable column
// whose name mentions a date or time. Rows without one are retained
func rowCurrent(columns []string, row []any, since time.Time) bool {
	if since.IsZero() {
		return true
	}
	for i, col := range columns {
		name := strings.ToLower(col)
		if !strings.Contains(name, "date") && !strings.Contains(name, "time") {
			continue
		}
		if i >= len(row) || row[i] == nil {
			continue
		}
		t, err := timeparse.Parse(row[i])
		if err != nil {
			continue
		}
		return !t.Before(since)
	}
	return true
}

// TransformRecord stamps tenant fields; the positional stamps were added
// during fetch
func (e *Quality) TransformRecord(rec domain.Record) (domain.Record, error) {
	e.stamp(rec)
	return rec, nil
}

// RecordKey reads the positional key assigned at fetch time
func (e *Quality) RecordKey(rec domain.Record) (string, error) {
	if key := canon.Str(rec["rawKey"]); key != "" {
		return key, nil
	}
	return "", perr.MissingIdentifierf("quality record missing rawKey")
}
