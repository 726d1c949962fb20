package launchpadtest

import (
	"github.com/shopspring/decimal"

	"github.com/inavhq/clawdvault-sdk/pkg/api"
)

// Curve constants of a fresh token.
var (
	InitialVirtualSol    = decimal.NewFromInt(30)
	InitialVirtualTokens = decimal.NewFromInt(1_073_000_000)
	TotalSupply          = decimal.NewFromInt(1_000_000_000)
	// FeeRate is charged on the SOL side of every trade.
	FeeRate = decimal.RequireFromString("0.01")
)

const (
	solDecimals   = 9
	tokenDecimals = 6
)

// curve is a constant-product bonding curve.
type curve struct {
	virtualSol    decimal.Decimal
	virtualTokens decimal.Decimal
	realSol       decimal.Decimal
	realTokens    decimal.Decimal
}

func newCurve() curve {
	return curve{
		virtualSol:    InitialVirtualSol,
		virtualTokens: InitialVirtualTokens,
		realSol:       decimal.Zero,
		realTokens:    TotalSupply,
	}
}

func (c curve) price() decimal.Decimal {
	return c.virtualSol.DivRound(c.virtualTokens, 18)
}

func (c curve) marketCap() decimal.Decimal {
	return c.price().Mul(TotalSupply).Round(solDecimals)
}

// fill is the outcome of a trade against the curve.
type fill struct {
	input       decimal.Decimal
	output      decimal.Decimal
	fee         decimal.Decimal
	solAmount   decimal.Decimal // SOL spent by a buyer or received by a seller
	tokenAmount decimal.Decimal
	priceImpact decimal.Decimal
	next        curve
}

// simulate prices a trade. For buys amount is SOL in, for sells tokens in.
func (c curve) simulate(typ api.TradeType, amount decimal.Decimal) fill {
	k := c.virtualSol.Mul(c.virtualTokens)
	spot := c.price()
	f := fill{input: amount, next: c}

	if typ == api.TradeBuy {
		f.fee = amount.Mul(FeeRate).Round(solDecimals)
		net := amount.Sub(f.fee)
		vs := c.virtualSol.Add(net)
		vt := k.DivRound(vs, 18)
		out := c.virtualTokens.Sub(vt).RoundFloor(tokenDecimals)
		if out.GreaterThan(c.realTokens) {
			out = c.realTokens
		}
		f.output = out
		f.solAmount = amount
		f.tokenAmount = out
		if out.IsPositive() {
			f.priceImpact = net.DivRound(out, 18).Sub(spot).DivRound(spot, 6)
		}
		f.next.virtualSol = vs
		f.next.virtualTokens = c.virtualTokens.Sub(out)
		f.next.realSol = c.realSol.Add(net)
		f.next.realTokens = c.realTokens.Sub(out)
		return f
	}

	vt := c.virtualTokens.Add(amount)
	vs := k.DivRound(vt, 18)
	gross := c.virtualSol.Sub(vs).RoundFloor(solDecimals)
	if gross.GreaterThan(c.realSol) {
		gross = c.realSol
	}
	f.fee = gross.Mul(FeeRate).Round(solDecimals)
	f.output = gross.Sub(f.fee)
	f.solAmount = f.output
	f.tokenAmount = amount
	if amount.IsPositive() && gross.IsPositive() {
		f.priceImpact = spot.Sub(gross.DivRound(amount, 18)).DivRound(spot, 6)
	}
	f.next.virtualSol = c.virtualSol.Sub(gross)
	f.next.virtualTokens = vt
	f.next.realSol = c.realSol.Sub(gross)
	f.next.realTokens = c.realTokens.Add(amount)
	return f
}
