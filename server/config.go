package server

import "github.com/0xPolygonHermez/zkevm-node/config/types"

// Config struct
type Config struct {
	// GRPCPort is TCP port to listen by gRPC health server
	GRPCPort string
	// HTTPPort is TCP port to listen by the REST API
	HTTPPort string
	// DefaultPageLimit is used when a list request carries no limit
	DefaultPageLimit uint32
	// MaxPageLimit caps the limit of a list request
	MaxPageLimit uint32
	// SignatureValidity is how far the timestamp of a signed owner request may drift from the server clock
	SignatureValidity types.Duration
	// ReadTimeout of the HTTP server
	ReadTimeout types.Duration
}
