package database

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/irfndi/stockcast-go/internal/database"

// DatabasePool is the subset of pgxpool.Pool the repositories use. pgxmock
// pools satisfy it as well.
type DatabasePool interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TracedPool wraps a DatabasePool and opens a client span per statement.
type TracedPool struct {
	pool   DatabasePool
	tracer trace.Tracer
}

// NewTracedPool wraps pool. A nil tracer uses the global provider.
func NewTracedPool(pool DatabasePool, tracer trace.Tracer) *TracedPool {
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &TracedPool{pool: pool, tracer: tracer}
}

func (db *TracedPool) start(ctx context.Context, name, sql string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("db.system", "postgresql")}
	if sql != "" {
		attrs = append(attrs,
			attribute.String("db.statement", sql),
			attribute.String("db.operation", operation(sql)),
		)
	}
	return db.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func (db *TracedPool) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	ctx, span := db.start(ctx, "db.exec", sql)
	defer span.End()

	tag, err := db.pool.Exec(ctx, sql, args...)
	if err == nil {
		span.SetAttributes(attribute.Int64("db.rows_affected", tag.RowsAffected()))
	}
	RecordDatabaseError(span, err)
	return tag, err
}

func (db *TracedPool) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	ctx, span := db.start(ctx, "db.query", sql)
	defer span.End()

	rows, err := db.pool.Query(ctx, sql, args...)
	RecordDatabaseError(span, err)
	return rows, err
}

func (db *TracedPool) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	ctx, span := db.start(ctx, "db.query_row", sql)
	defer span.End()
	return db.pool.QueryRow(ctx, sql, args...)
}

// Begin starts a transaction whose statements are traced as well.
func (db *TracedPool) Begin(ctx context.Context) (pgx.Tx, error) {
	ctx, span := db.start(ctx, "db.begin", "")
	defer span.End()

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		RecordDatabaseError(span, err)
		return nil, err
	}
	return &TracedTx{Tx: tx, tracer: db.tracer}, nil
}

// TracedTx traces the statements a repository issues inside a transaction.
// Everything else passes through to the embedded pgx.Tx.
type TracedTx struct {
	pgx.Tx
	tracer trace.Tracer
}

func (tx *TracedTx) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	ctx, span := tx.tracer.Start(ctx, "db.tx.exec", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.operation", operation(sql))))
	defer span.End()

	tag, err := tx.Tx.Exec(ctx, sql, args...)
	RecordDatabaseError(span, err)
	return tag, err
}

func (tx *TracedTx) Commit(ctx context.Context) error {
	ctx, span := tx.tracer.Start(ctx, "db.tx.commit", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	err := tx.Tx.Commit(ctx)
	RecordDatabaseError(span, err)
	return err
}

func (tx *TracedTx) Rollback(ctx context.Context) error {
	ctx, span := tx.tracer.Start(ctx, "db.tx.rollback", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	return tx.Tx.Rollback(ctx)
}

// RecordDatabaseError marks span as failed when err is set.
func RecordDatabaseError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// operation returns the leading SQL keyword, e.g. "INSERT".
func operation(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}
