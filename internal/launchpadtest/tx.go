package launchpadtest

import (
	"crypto/ed25519"
	"crypto/rand"

	"github.com/gagliardetto/solana-go"
)

// ProgramID is the fake launchpad program every built transaction invokes.
var ProgramID = solana.PublicKeyFromBytes(append(make([]byte, 31), 9))

// BuildTransaction returns an unsigned legacy Solana transaction whose
// required signers are signers, in order, with one instruction carrying data.
func BuildTransaction(data []byte, signers ...ed25519.PublicKey) []byte {
	keys := make(solana.PublicKeySlice, 0, len(signers)+1)
	accounts := make([]uint16, 0, len(signers))
	for i, s := range signers {
		keys = append(keys, solana.PublicKeyFromBytes(s))
		accounts = append(accounts, uint16(i))
	}
	keys = append(keys, ProgramID)

	var blockhash solana.Hash
	_, _ = rand.Read(blockhash[:])

	tx := &solana.Transaction{
		Signatures: make([]solana.Signature, len(signers)),
		Message: solana.Message{
			Header: solana.MessageHeader{
				NumRequiredSignatures:       uint8(len(signers)),
				NumReadonlyUnsignedAccounts: 1,
			},
			AccountKeys:     keys,
			RecentBlockhash: blockhash,
			Instructions: []solana.CompiledInstruction{{
				ProgramIDIndex: uint16(len(signers)),
				Accounts:       accounts,
				Data:           solana.Base58(data),
			}},
		},
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		panic(err)
	}
	return raw
}
