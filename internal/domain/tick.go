package domain

// PriceTick is one observed token price.
// Corresponds to price_ticks table in ClickHouse.
type PriceTick struct {
	Mint         string
	TimestampMs  int64   // Unix timestamp in milliseconds
	PriceSol     float64 // price per token in SOL
	MarketCapSol float64
	Source       string // feed the tick came from, e.g. "stream"
}
