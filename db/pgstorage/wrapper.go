package pgstorage

import (
	"context"
	"strings"
	"time"

	"github.com/0xPolygonHermez/zkevm-node/log"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/stakebatch/batch-deposit-service/utils"
)

type execQuerier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (commandTag pgconn.CommandTag, err error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// execQuerierWrapper logs every statement with the trace ID of the request that issued it
type execQuerierWrapper struct {
	execQuerier
}

// traceQuery logs the statement and returns the function logging its completion
func traceQuery(ctx context.Context, method, sql string, args []interface{}) func(err error) {
	logger := log.WithFields(utils.TraceID, utils.GetTraceID(ctx), "method", method)
	sql = strings.ReplaceAll(sql, "\n", " ")
	start := time.Now()
	logger.Debugf("DB query begin, sql[%s] arguments[%v]", sql, args)
	return func(err error) {
		logger.Debugf("DB query end, sql[%s] err[%v] processTime[%s]", sql, err, time.Since(start))
	}
}

func (w *execQuerierWrapper) Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error) {
	done := traceQuery(ctx, "Exec", sql, arguments)
	tag, err := w.execQuerier.Exec(ctx, sql, arguments...)
	done(err)
	return tag, err
}

func (w *execQuerierWrapper) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	done := traceQuery(ctx, "Query", sql, args)
	rows, err := w.execQuerier.Query(ctx, sql, args...)
	done(err)
	return rows, err
}

// QueryRow defers the error to Scan, so only the dispatch is traced
func (w *execQuerierWrapper) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	done := traceQuery(ctx, "QueryRow", sql, args)
	row := w.execQuerier.QueryRow(ctx, sql, args...)
	done(nil)
	return row
}
