package extractors

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"plexingest/internal/core/canon"
	"plexingest/internal/core/timeparse"
	perr "plexingest/internal/platform/errors"
	"plexingest/internal/platform/logger"
	"plexingest/internal/services/ingest/domain"
)

const jobsPath = "/scheduling/v1/jobs"

// Jobs pulls scheduled jobs and their operations
type Jobs struct {
	Shared
	Lookback int // days
	log      logger.Logger
}

// NewJobs builds the jobs extractor
func NewJobs(sh Shared, lookbackDays int) *Jobs {
	return &Jobs{Shared: sh, Lookback: lookbackDays, log: *logger.Named("jobs")}
}

func (e *Jobs) Name() string     { return "jobs" }
func (e *Jobs) RawTable() string { return "jobs" }

// FetchRecords pulls jobs in the lookback window and attaches each job's
// operations. A failed operations fetch leaves the job without operations
// rather than failing the cycle
func (e *Jobs) FetchRecords(ctx context.Context, since time.Time) ([]domain.Record, error) {
	from, to := e.window(since, e.Lookback)

	q := url.Values{}
	q.Set("dateFrom", timeparse.Format(from))
	q.Set("dateTo", timeparse.Format(to))

	jobs, err := e.Plex.Paginate(ctx, jobsPath, q, "data", e.PageSize)
	if err != nil {
		return nil, err
	}

	for _, job := range jobs {
		id := canon.First(job, "id", "jobId")
		if id == "" {
			continue
		}
		ops, err := e.Plex.GetJSON(ctx, fmt.Sprintf("%s/%s/operations", jobsPath, id), nil)
		if err != nil {
			e.log.Warn().Str("job", id).Err(err).Msg("operations fetch failed, continuing without")
			continue
		}
		if list, ok := ops.([]any); ok {
			job["operations"] = list
		}
	}

	out := make([]domain.Record, len(jobs))
	for i, j := range jobs {
		out[i] = j
	}
	return out, nil
}

// TransformRecord lifts a representative workcenter onto the flat columns
// and stamps tenant fields
func (e *Jobs) TransformRecord(rec domain.Record) (domain.Record, error) {
	e.stamp(rec)
	promoteWorkcenter(rec)

	// a bare string workcenter is already representative
	if wc, ok := rec["workcenter"].(string); ok && wc != "" {
		promoteValue(rec, "workcenterCode", wc)
	}

	// fall back to the first operation's workcenter fields
	if firstString(rec, "workcenterCode", "workcenterId", "workcenterName") == "" {
		if ops, ok := rec["operations"].([]any); ok && len(ops) > 0 {
			if op, ok := ops[0].(map[string]any); ok {
				promoteValue(rec, "workcenterCode", canon.First(op, "workcenterCode", "workcenter"))
				promoteValue(rec, "workcenterId", canon.First(op, "workcenterId"))
				promoteValue(rec, "workcenterName", canon.First(op, "workcenterName"))
			}
		}
	}
	return rec, nil
}

// RecordKey prefers the job id, then the job number joined with its
// scheduled start
func (e *Jobs) RecordKey(rec domain.Record) (string, error) {
	if id := canon.First(rec, "id", "jobId"); id != "" {
		return id, nil
	}
	no := canon.First(rec, "jobNo", "jobNumber")
	start := canon.First(rec, "scheduledStart", "scheduledStartDate", "startDate")
	if no != "" && start != "" {
		return no + "-" + start, nil
	}
	return "", perr.MissingIdentifierf("job record has no id, jobId or jobNo/scheduledStart pair")
}
