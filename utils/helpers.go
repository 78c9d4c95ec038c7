package utils

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GenerateTraceID generates a random trace ID.
func GenerateTraceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// WithTraceID returns a context carrying the trace ID, generating one when traceID is empty
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		traceID = GenerateTraceID()
	}
	return context.WithValue(ctx, CtxTraceID, traceID)
}

// GetTraceID returns the trace ID carried by the context, if any
func GetTraceID(ctx context.Context) string {
	traceID, _ := ctx.Value(CtxTraceID).(string)
	return traceID
}

// ParseEther converts a decimal ETH amount ("32", "0.1") into wei.
// Amounts with more than 18 decimals or a negative sign are refused.
func ParseEther(s string) (*big.Int, error) {
	return parseUnits(s, EtherDecimals)
}

// ParseGwei converts a decimal gwei amount into wei
func ParseGwei(s string) (*big.Int, error) {
	return parseUnits(s, GweiDecimals)
}

func parseUnits(s string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("invalid amount %q: negative", s)
	}
	wei := d.Shift(decimals)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, fmt.Errorf("invalid amount %q: more than %d decimals", s, decimals)
	}
	return wei.BigInt(), nil
}

// FormatEther renders a wei amount as a decimal ETH string without trailing zeros
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -EtherDecimals).String()
}
