package ledger

// Default rent parameters.
const (
	DefaultBytePrice       = 3480
	DefaultExemptionFactor = 2
	DefaultAccountOverhead = 128
)

// Rent prices account storage. An account is only created when funded
// with at least MinimumBalance for its size.
type Rent struct {
	BytePrice       uint64 `json:"byte_price"`
	ExemptionFactor uint64 `json:"exemption_factor"`
	AccountOverhead uint64 `json:"account_overhead"`
}

// DefaultRent returns the default rent parameters.
func DefaultRent() Rent {
	return Rent{
		BytePrice:       DefaultBytePrice,
		ExemptionFactor: DefaultExemptionFactor,
		AccountOverhead: DefaultAccountOverhead,
	}
}

// MinimumBalance returns the balance that makes an account of the given
// data size rent exempt.
func (r Rent) MinimumBalance(space int) uint64 {
	return (r.AccountOverhead + uint64(space)) * r.BytePrice * r.ExemptionFactor
}

// IsExempt reports whether balance covers an account of the given size.
func (r Rent) IsExempt(balance uint64, space int) bool {
	return balance >= r.MinimumBalance(space)
}
