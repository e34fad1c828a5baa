package state

import (
	"bytes"

	errorsmod "cosmossdk.io/errors"
	bin "github.com/gagliardetto/binary"

	"cpswap/pkg/ammerr"
)

const discriminatorLen = 8

// Account names as registered by the program; each maps to an 8 byte
// discriminator prefix.
const (
	accountAmmConfig        = "AmmConfig"
	accountDiscountConfig   = "DiscountConfig"
	accountPoolState        = "PoolState"
	accountObservationState = "ObservationState"
)

func Discriminator(accountName string) []byte {
	return bin.Sighash(bin.SIGHASH_ACCOUNT_NAMESPACE, accountName)[:discriminatorLen]
}

func decodeAccount(name string, data []byte, v interface{}) error {
	if len(data) < discriminatorLen {
		return errorsmod.Wrapf(ammerr.ErrInvalidAccountData, "%s: got %d bytes", name, len(data))
	}
	if !bytes.Equal(data[:discriminatorLen], Discriminator(name)) {
		return errorsmod.Wrapf(ammerr.ErrInvalidAccountData, "%s: discriminator mismatch", name)
	}
	if err := bin.NewBorshDecoder(data[discriminatorLen:]).Decode(v); err != nil {
		return errorsmod.Wrapf(ammerr.ErrInvalidAccountData, "%s: %v", name, err)
	}
	return nil
}

func encodeAccount(name string, v interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(Discriminator(name))
	if err := bin.NewBorshEncoder(buf).Encode(v); err != nil {
		return nil, errorsmod.Wrapf(ammerr.ErrInvalidAccountData, "%s: %v", name, err)
	}
	return buf.Bytes(), nil
}
