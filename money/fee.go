package money

import "github.com/elastos-sidechain/spvwallet/internal/er"

// Size estimates and fee policy, grounded on pktwallet's txrules package but
// adapted to this wallet's fixed per-kb fee model (spec.md §4.1) instead of
// btcwallet's relay-fee dust threshold.
const (
	// OutputSize is the estimated serialized size, in bytes, of a single
	// transaction output.
	OutputSize = 34

	// InputSize is the estimated serialized size, in bytes, of a single
	// transaction input (outpoint + sequence + signature script).
	InputSize = 148

	// TxMaxSize is the hard ceiling on assembled transaction size.
	TxMaxSize = 100_000

	// DefaultFeePerKB is the fee rate used when the caller doesn't specify
	// one.
	DefaultFeePerKB = 10_000

	// MinFeePerKB is the minimum accepted fee-per-kb; fee_per_kb == 0 is
	// rejected outright.
	MinFeePerKB = 1_000
)

// MaxFeePerKB is the upper fee-per-kb bound, derived from spec.md §4.1's
// (1000100+190)/191*1000 formula. ValidateFeeRate checks only the lower
// bound; nothing in this module enforces this one.
var MaxFeePerKB = (1_000_100 + 190) / 191 * 1000

// MinOutputAmount is the dust threshold: any non-special output below this
// amount is rejected.
var MinOutputAmount = MustAmount(DefaultFeePerKB * 3 * (OutputSize + InputSize) / 1000)

// ErrFeeTooLow is returned when a caller asks for fee_per_kb == 0 or below
// MinFeePerKB.
var ErrFeeTooLow = Err.Code("FeeTooLow")

// ErrDustOutput is returned when an output amount is below MinOutputAmount.
var ErrDustOutput = Err.Code("DustOutput")

// ErrTxTooLarge is returned when an assembled transaction exceeds TxMaxSize.
var ErrTxTooLarge = Err.Code("TxTooLarge")

// ValidateFeeRate rejects a fee-per-kb of zero or below the policy minimum.
func ValidateFeeRate(feePerKB int64) er.R {
	if feePerKB <= 0 {
		return ErrFeeTooLow.New("fee_per_kb must be nonzero", nil)
	}
	if feePerKB < MinFeePerKB {
		return ErrFeeTooLow.New("fee_per_kb below MinFeePerKB", nil)
	}
	return nil
}

// EstimateFee computes fee = ceil(sizeBytes * feePerKB / 1000).
func EstimateFee(sizeBytes int, feePerKB int64) (Amount, er.R) {
	fee, err := MustAmount(feePerKB).Mul(int64(sizeBytes))
	if err != nil {
		return Zero, err
	}
	return fee.DivCeil(1000), nil
}

// EstimateSize estimates the serialized size of a transaction with the given
// number of inputs and outputs plus a fixed per-type overhead (version,
// lock_time, attribute/program framing).
func EstimateSize(numInputs, numOutputs, overhead int) int {
	return overhead + numInputs*InputSize + numOutputs*OutputSize
}

// CheckOutputAmount rejects dust in non-special transaction types.
func CheckOutputAmount(amt Amount, allowZero bool) er.R {
	if allowZero && amt.IsZero() {
		return nil
	}
	if amt.Cmp(MinOutputAmount) < 0 {
		return ErrDustOutput.New("", nil)
	}
	return nil
}

// CheckSize rejects an assembled transaction over TxMaxSize.
func CheckSize(sizeBytes int) er.R {
	if sizeBytes > TxMaxSize {
		return ErrTxTooLarge.New("", nil)
	}
	return nil
}
