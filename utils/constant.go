package utils

type contextKey string

const (
	// CtxTraceID is the context key holding the trace ID of a request
	CtxTraceID contextKey = "traceID"
)

const (
	// TraceID is the log field name of the trace ID
	TraceID = "traceID"
)

const (
	// EtherDecimals is the number of decimals between wei and ETH
	EtherDecimals = 18
	// GweiDecimals is the number of decimals between wei and gwei
	GweiDecimals = 9
)
