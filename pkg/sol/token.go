package sol

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"

	"cpswap/pkg/fees"
)

const (
	// MintSize is the length of a legacy SPL mint. Token-2022 mints with
	// extensions are longer and carry their TLV data after the account type.
	MintSize         = 82
	TokenAccountSize = 165

	accountTypeMint        = 1
	extensionTransferFee   = 1
	transferFeeExtensionSz = 108
)

// TokenAccount is the part of an SPL token account the swap path needs.
type TokenAccount struct {
	Address solana.PublicKey
	Mint    solana.PublicKey
	Owner   solana.PublicKey
	Amount  uint64
}

func DecodeTokenAccount(address solana.PublicKey, data []byte) (TokenAccount, error) {
	if len(data) < TokenAccountSize {
		return TokenAccount{}, fmt.Errorf("token account %s: got %d bytes", address, len(data))
	}
	var acct token.Account
	if err := bin.NewBinDecoder(data).Decode(&acct); err != nil {
		return TokenAccount{}, fmt.Errorf("token account %s: %w", address, err)
	}
	return TokenAccount{
		Address: address,
		Mint:    acct.Mint,
		Owner:   acct.Owner,
		Amount:  acct.Amount,
	}, nil
}

// EpochFee is one of the two transfer fee schedules held by a mint.
type EpochFee struct {
	Epoch       uint64
	MaximumFee  uint64
	BasisPoints uint16
}

type transferFeeExtension struct {
	ConfigAuthority   solana.PublicKey
	WithdrawAuthority solana.PublicKey
	WithheldAmount    uint64
	Older             EpochFee
	Newer             EpochFee
}

// MintInfo describes a mint for pricing and transfer building.
type MintInfo struct {
	Address   solana.PublicKey
	Decimals  uint8
	ProgramID solana.PublicKey
	// Present only on Token-2022 mints with the transfer fee extension.
	OlderTransferFee *EpochFee
	NewerTransferFee *EpochFee
}

// TransferFeeAt returns the schedule active at epoch.
func (m MintInfo) TransferFeeAt(epoch uint64) fees.TransferFeeConfig {
	if m.NewerTransferFee == nil {
		return fees.TransferFeeConfig{}
	}
	active := m.NewerTransferFee
	if epoch < active.Epoch && m.OlderTransferFee != nil {
		active = m.OlderTransferFee
	}
	return fees.TransferFeeConfig{BasisPoints: active.BasisPoints, MaximumFee: active.MaximumFee}
}

func (m MintInfo) IsToken2022() bool {
	return m.ProgramID.Equals(solana.Token2022ProgramID)
}

// DecodeMint reads a mint account. The program is inferred from the data
// length: a Token-2022 mint without extensions is MintSize bytes like a
// legacy one and decodes as TokenProgramID. Callers that know the owning
// program must override ProgramID.
func DecodeMint(address solana.PublicKey, data []byte) (MintInfo, error) {
	if len(data) < MintSize {
		return MintInfo{}, fmt.Errorf("mint %s: got %d bytes", address, len(data))
	}
	var mint token.Mint
	if err := bin.NewBinDecoder(data[:MintSize]).Decode(&mint); err != nil {
		return MintInfo{}, fmt.Errorf("mint %s: %w", address, err)
	}
	info := MintInfo{
		Address:   address,
		Decimals:  mint.Decimals,
		ProgramID: solana.TokenProgramID,
	}
	if len(data) == MintSize {
		return info, nil
	}

	info.ProgramID = solana.Token2022ProgramID
	if len(data) <= TokenAccountSize || data[TokenAccountSize] != accountTypeMint {
		return info, nil
	}
	tlv := data[TokenAccountSize+1:]
	for len(tlv) >= 4 {
		extType := binary.LittleEndian.Uint16(tlv[0:2])
		length := int(binary.LittleEndian.Uint16(tlv[2:4]))
		if extType == 0 || len(tlv) < 4+length {
			break
		}
		if extType == extensionTransferFee && length == transferFeeExtensionSz {
			var ext transferFeeExtension
			if err := bin.NewBinDecoder(tlv[4 : 4+length]).Decode(&ext); err != nil {
				return MintInfo{}, fmt.Errorf("mint %s transfer fee extension: %w", address, err)
			}
			info.OlderTransferFee = &ext.Older
			info.NewerTransferFee = &ext.Newer
		}
		tlv = tlv[4+length:]
	}
	return info, nil
}

// EncodeTokenAccount renders an initialized token account in the SPL layout.
func EncodeTokenAccount(acct TokenAccount) ([]byte, error) {
	buf := new(bytes.Buffer)
	err := bin.NewBinEncoder(buf).Encode(token.Account{
		Mint:   acct.Mint,
		Owner:  acct.Owner,
		Amount: acct.Amount,
		State:  token.Initialized,
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeMint renders a mint. Mints carrying a transfer fee schedule are
// written in the Token-2022 extended layout.
func EncodeMint(info MintInfo) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	if err := enc.Encode(token.Mint{Decimals: info.Decimals, IsInitialized: true}); err != nil {
		return nil, err
	}
	if info.NewerTransferFee == nil {
		return buf.Bytes(), nil
	}
	buf.Write(make([]byte, TokenAccountSize-MintSize))
	buf.WriteByte(accountTypeMint)
	older := info.OlderTransferFee
	if older == nil {
		older = info.NewerTransferFee
	}
	if err := enc.WriteUint16(extensionTransferFee, bin.LE); err != nil {
		return nil, err
	}
	if err := enc.WriteUint16(transferFeeExtensionSz, bin.LE); err != nil {
		return nil, err
	}
	if err := enc.Encode(transferFeeExtension{Older: *older, Newer: *info.NewerTransferFee}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
