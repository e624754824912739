package repository

import (
	"context"
	"fmt"
	"log/slog"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/exam-importer/internal/common"
)

// Migrate creates the ledger schema if it does not exist.
func Migrate(ctx context.Context, db *DB) error {
	timeType, jsonType := "TIMESTAMP", "TEXT"
	if db.Dialect == dialect.Postgres {
		timeType, jsonType = "TIMESTAMPTZ", "JSONB"
	}
	counter := func(name, typ string) *entsql.ColumnBuilder {
		return entsql.Column(name).Type(typ).Attr("NOT NULL DEFAULT 0")
	}
	b := db.builder()
	stmts := []entsql.Querier{
		b.CreateTable(tableExtractJob).IfNotExists().
			Columns(
				entsql.Column(colID).Type("TEXT").Attr("NOT NULL"),
				entsql.Column(colMode).Type("TEXT").Attr("NOT NULL"),
				entsql.Column(colStatus).Type("TEXT").Attr("NOT NULL"),
				entsql.Column(colStartedAt).Type(timeType).Attr("NOT NULL"),
				entsql.Column(colFinishedAt).Type(timeType),
				counter(colByteSize, "BIGINT"),
				counter(colPageCount, "INTEGER"),
				counter(colUnitsTotal, "INTEGER"),
				counter(colUnitsFailed, "INTEGER"),
				counter(colQuestions, "INTEGER"),
				counter(colLessons, "INTEGER"),
				counter(colNeedsReview, "INTEGER"),
				entsql.Column(colErrorMessage).Type("TEXT"),
				entsql.Column(colMetadata).Type(jsonType),
				entsql.Column(colResult).Type(jsonType),
			).
			PrimaryKey(colID),
		b.CreateIndex("extract_job_started_at_idx").IfNotExists().Table(tableExtractJob).Columns(colStartedAt),
	}
	for _, st := range stmts {
		query, args := st.Query()
		if err := db.drv.Exec(ctx, query, args, nil); err != nil {
			db.log.Error("migration failed", "error", err)
			return fmt.Errorf("migrate: %w", err)
		}
	}
	db.log.Info("ledger schema ready", "dialect", db.Dialect)
	return nil
}

// OpenLedger opens and migrates the job ledger described by cfg. An empty DSN
// returns nils: the ledger is optional.
func OpenLedger(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*DB, ExtractJobRepository, error) {
	if cfg.DSN == "" {
		return nil, nil, nil
	}
	db, err := Open(ctx, Config{
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		MaxConnLifetime: cfg.MaxConnLifetime,
		DialTimeout:     cfg.DialTimeout,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, NewExtractJobRepository(db, logger), nil
}
