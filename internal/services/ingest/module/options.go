package module

import (
	"time"

	"github.com/go-playground/validator/v10"

	"plexingest/internal/core/timeparse"
	"plexingest/internal/platform/config"
	perr "plexingest/internal/platform/errors"
)

// Options is the full ingest configuration, assembled from the
// environment and validated before any client is constructed
type Options struct {
	// Upstream REST API
	PlexBaseURL    string `validate:"required,url"`
	PlexAPIKey     string `validate:"required"`
	PlexCustomerID string `validate:"required"`

	// Upstream DataSource API
	DSHost     string `validate:"required,url"`
	DSUsername string `validate:"required"`
	DSPassword string `validate:"required"`

	// Downstream platform
	CDFHost         string `validate:"required,url"`
	CDFProject      string `validate:"required"`
	CDFClientID     string `validate:"required"`
	CDFClientSecret string `validate:"required"`
	CDFTokenURL     string `validate:"required,url"`

	// Landing targets and state
	RawDatabase    string `validate:"required"`
	ExtractorSpace string
	StateDir       string `validate:"required"`
	Facility       string

	// Tuning
	BatchSize  int           `validate:"gt=0"`
	MaxRetries int           `validate:"gt=0"`
	RetryDelay time.Duration `validate:"gt=0"`

	// Per-domain lookback, in days
	JobsLookback        int `validate:"gt=0"`
	ProductionLookback  int `validate:"gt=0"`
	InventoryLookback   int `validate:"gt=0"`
	PerformanceLookback int `validate:"gt=0"`
	MasterLookback      int `validate:"gt=0"`

	// Quality datasource tuning
	QualityDaysBack  int `validate:"gt=0"`
	QualityBatchSize int `validate:"gt=0"`
	QualityStartDate time.Time
}

// FromConfig reads Options from the environment. Missing credentials are
// a fatal configuration error listing every absent variable at once
func FromConfig(cfg config.Conf) (Options, error) {
	plexCfg := cfg.Prefix("PLEX_")
	cdfCfg := cfg.Prefix("CDF_")
	qCfg := cfg.Prefix("QUALITY_")

	o := Options{
		PlexBaseURL:    plexCfg.MayString("BASE_URL", "https://connect.plex.com"),
		PlexAPIKey:     plexCfg.MayString("API_KEY", ""),
		PlexCustomerID: plexCfg.MayString("CUSTOMER_ID", ""),

		DSHost:     plexCfg.MayString("DS_HOST", ""),
		DSUsername: plexCfg.MayString("DS_USERNAME", ""),
		DSPassword: plexCfg.MayString("DS_PASSWORD", ""),

		CDFHost:         cdfCfg.MayString("HOST", ""),
		CDFProject:      cdfCfg.MayString("PROJECT", ""),
		CDFClientID:     cdfCfg.MayString("CLIENT_ID", ""),
		CDFClientSecret: cdfCfg.MayString("CLIENT_SECRET", ""),
		CDFTokenURL:     cdfCfg.MayString("TOKEN_URL", ""),

		RawDatabase:    plexCfg.MayString("RAW_DATABASE", "plex_raw"),
		ExtractorSpace: plexCfg.MayString("EXTRACTOR_SPACE", ""),
		StateDir:       plexCfg.MayString("STATE_DIR", "./state"),
		Facility:       plexCfg.MayString("FACILITY", ""),

		BatchSize:  plexCfg.MayInt("BATCH_SIZE", 1000),
		MaxRetries: plexCfg.MayInt("MAX_RETRIES", 3),
		RetryDelay: time.Duration(plexCfg.MayInt("RETRY_DELAY", 5)) * time.Second,

		JobsLookback:        plexCfg.MayInt("JOBS_LOOKBACK_DAYS", 7),
		ProductionLookback:  cfg.MayInt("PRODUCTION_LOOKBACK_DAYS", 3),
		InventoryLookback:   cfg.MayInt("INVENTORY_LOOKBACK_DAYS", 7),
		PerformanceLookback: cfg.MayInt("PERFORMANCE_LOOKBACK_DAYS", 7),
		MasterLookback:      cfg.MayInt("MASTER_LOOKBACK_DAYS", 30),

		QualityDaysBack:  qCfg.MayInt("DAYS_BACK", 30),
		QualityBatchSize: qCfg.MayInt("BATCH_SIZE", 1000),
	}

	if raw := qCfg.MayString("EXTRACTION_START_DATE", ""); raw != "" {
		t, err := timeparse.ParseString(raw)
		if err != nil {
			return Options{}, perr.Wrapf(err, perr.ErrorCodeValidation, "QUALITY_EXTRACTION_START_DATE")
		}
		o.QualityStartDate = t
	}

	if err := validator.New().Struct(o); err != nil {
		return Options{}, perr.Wrapf(err, perr.ErrorCodeValidation, "ingest configuration incomplete")
	}
	return o, nil
}
