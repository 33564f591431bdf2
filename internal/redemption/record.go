package redemption

import (
	"bytes"
	"fmt"

	"github.com/Klingon-tech/klingnet-redemption/pkg/crypto"
	"github.com/Klingon-tech/klingnet-redemption/pkg/types"
)

// Record layout sizes.
const (
	DiscriminatorSize = 8
	recordFieldsSize  = types.AddressSize + types.AddressSize + 1 + 1
	// RecordSpace is the allocated size. Twice the field size leaves room
	// for fields added later without moving the account.
	RecordSpace = DiscriminatorSize + 2*recordFieldsSize
)

// recordDiscriminator tags record accounts so that no other account
// owned by the program decodes as one.
var recordDiscriminator = func() [DiscriminatorSize]byte {
	var d [DiscriminatorSize]byte
	h := crypto.Hash([]byte("account:RedemptionRecord"))
	copy(d[:], h[:DiscriminatorSize])
	return d
}()

// Record is the persisted state of one in-flight redemption.
type Record struct {
	BuyerTokenAccount   types.Address `json:"buyer_token_account"`
	BuyerPaymentAccount types.Address `json:"buyer_payment_account"`
	EscrowBump          uint8         `json:"escrow_bump"`
	RecordBump          uint8         `json:"record_bump"`
}

// Encode serializes r into a RecordSpace-sized buffer.
//
// Layout:
//
//	[8 bytes:  discriminator]
//	[32 bytes: buyer token account]
//	[32 bytes: buyer payment account]
//	[1 byte:   escrow bump]
//	[1 byte:   record bump]
//	[zero padding to RecordSpace]
func (r *Record) Encode() []byte {
	buf := make([]byte, RecordSpace)
	off := copy(buf, recordDiscriminator[:])
	off += copy(buf[off:], r.BuyerTokenAccount[:])
	off += copy(buf[off:], r.BuyerPaymentAccount[:])
	buf[off] = r.EscrowBump
	buf[off+1] = r.RecordBump
	return buf
}

// DecodeRecord parses a record account's data.
func DecodeRecord(data []byte) (*Record, error) {
	if len(data) < DiscriminatorSize+recordFieldsSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidRecord, len(data))
	}
	if !bytes.Equal(data[:DiscriminatorSize], recordDiscriminator[:]) {
		return nil, fmt.Errorf("%w: bad discriminator", ErrInvalidRecord)
	}
	var r Record
	off := DiscriminatorSize
	copy(r.BuyerTokenAccount[:], data[off:])
	off += types.AddressSize
	copy(r.BuyerPaymentAccount[:], data[off:])
	off += types.AddressSize
	r.EscrowBump = data[off]
	r.RecordBump = data[off+1]
	return &r, nil
}
