package txtypes

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/elastos-sidechain/spvwallet/addr"
	"github.com/elastos-sidechain/spvwallet/internal/er"
)

// ErrMalformed is returned when Parse encounters truncated or inconsistent
// wire data.
var ErrMalformed = Err.Code("Malformed")

func readVarInt(r *bytes.Reader) (uint64, er.R) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, ErrMalformed.New("", er.E(err))
	}
	switch b {
	case 0xfd:
		var v uint16
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return 0, ErrMalformed.New("", er.E(err))
		}
		return uint64(v), nil
	case 0xfe:
		var v uint32
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return 0, ErrMalformed.New("", er.E(err))
		}
		return uint64(v), nil
	case 0xff:
		var v uint64
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return 0, ErrMalformed.New("", er.E(err))
		}
		return v, nil
	default:
		return uint64(b), nil
	}
}

func readVarBytes(r *bytes.Reader) ([]byte, er.R) {
	n, err := readVarInt(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, e := io.ReadFull(r, buf); e != nil {
		return nil, ErrMalformed.New("", er.E(e))
	}
	return buf, nil
}

// decodePayload reconstructs the typed Payload for t from its raw bytes. A
// zero-length payload on a type that allows an empty payload (normal,
// cross-chain transfer) decodes to PayloadNormal.
func decodePayload(t Type, raw []byte) (Payload, er.R) {
	r := bytes.NewReader(raw)
	switch t {
	case TypeNormal, TypeTransferCrossChain:
		return PayloadNormal{}, nil
	case TypeCoinbase:
		br := bytes.NewReader(raw)
		data, err := readVarBytes(br)
		if err != nil {
			return nil, err
		}
		return PayloadCoinbase{CoinbaseData: data}, nil
	case TypeRegisterAsset:
		br := bytes.NewReader(raw)
		name, err := readVarBytes(br)
		if err != nil {
			return nil, err
		}
		precision, e := br.ReadByte()
		if e != nil {
			return nil, ErrMalformed.New("", er.E(e))
		}
		var controller [21]byte
		if _, e := io.ReadFull(br, controller[:]); e != nil {
			return nil, ErrMalformed.New("", er.E(e))
		}
		var amt uint64
		if e := binary.Read(br, binary.LittleEndian, &amt); e != nil {
			return nil, ErrMalformed.New("", er.E(e))
		}
		return PayloadRegisterAsset{
			Name: string(name), Precision: precision, Controller: controller,
			RegistrationAmount: amt,
		}, nil
	case TypeRegisterProducer:
		br := bytes.NewReader(raw)
		ownerPK, err := readVarBytes(br)
		if err != nil {
			return nil, err
		}
		nodePK, err := readVarBytes(br)
		if err != nil {
			return nil, err
		}
		nickname, err := readVarBytes(br)
		if err != nil {
			return nil, err
		}
		url, err := readVarBytes(br)
		if err != nil {
			return nil, err
		}
		var location uint64
		if e := binary.Read(br, binary.LittleEndian, &location); e != nil {
			return nil, ErrMalformed.New("", er.E(e))
		}
		address, err := readVarBytes(br)
		if err != nil {
			return nil, err
		}
		var amt uint64
		if e := binary.Read(br, binary.LittleEndian, &amt); e != nil {
			return nil, ErrMalformed.New("", er.E(e))
		}
		return PayloadRegisterProducer{
			OwnerPublicKey: ownerPK, NodePublicKey: nodePK,
			Nickname: string(nickname), URL: string(url),
			Location: location, Address: string(address), Amount: amt,
		}, nil
	case TypeVote:
		br := bytes.NewReader(raw)
		n, err := readVarInt(br)
		if err != nil {
			return nil, err
		}
		contents := make([]VoteContent, 0, n)
		for i := uint64(0); i < n; i++ {
			cand, err := readVarBytes(br)
			if err != nil {
				return nil, err
			}
			var w uint64
			if e := binary.Read(br, binary.LittleEndian, &w); e != nil {
				return nil, ErrMalformed.New("", er.E(e))
			}
			contents = append(contents, VoteContent{Candidate: cand, Weight: w})
		}
		return PayloadVote{Contents: contents}, nil
	case TypeDID:
		br := bytes.NewReader(raw)
		data, err := readVarBytes(br)
		if err != nil {
			return nil, err
		}
		return PayloadDID{DIDInfoJSON: data}, nil
	default:
		_ = r
		return nil, ErrInvalidPayload.New("unknown transaction type", nil)
	}
}

// Parse decodes the wire format produced by Serialize. Programs are
// expected to be present (this is the full, signed wire form, not the
// signable hash input).
func Parse(data []byte) (*Transaction, er.R) {
	r := bytes.NewReader(data)
	tx := &Transaction{}

	vByte, e := r.ReadByte()
	if e != nil {
		return nil, ErrMalformed.New("", er.E(e))
	}
	tx.Version = vByte

	tByte, e := r.ReadByte()
	if e != nil {
		return nil, ErrMalformed.New("", er.E(e))
	}
	tx.Type = Type(tByte)

	payloadBytes, err := readVarBytes(r)
	if err != nil {
		return nil, err
	}
	payload, err := decodePayload(tx.Type, payloadBytes)
	if err != nil {
		return nil, err
	}
	tx.Payload = payload

	nAttrs, err := readVarInt(r)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < nAttrs; i++ {
		a, err := readVarBytes(r)
		if err != nil {
			return nil, err
		}
		tx.Attributes = append(tx.Attributes, a)
	}

	nIn, err := readVarInt(r)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < nIn; i++ {
		var in Input
		if _, e := io.ReadFull(r, in.Outpoint.TxHash[:]); e != nil {
			return nil, ErrMalformed.New("", er.E(e))
		}
		if e := binary.Read(r, binary.LittleEndian, &in.Outpoint.Index); e != nil {
			return nil, ErrMalformed.New("", er.E(e))
		}
		if e := binary.Read(r, binary.LittleEndian, &in.Sequence); e != nil {
			return nil, ErrMalformed.New("", er.E(e))
		}
		tx.Inputs = append(tx.Inputs, in)
	}

	nOut, err := readVarInt(r)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < nOut; i++ {
		var out Output
		if e := binary.Read(r, binary.LittleEndian, &out.Amount); e != nil {
			return nil, ErrMalformed.New("", er.E(e))
		}
		ph, err := readVarBytes(r)
		if err != nil {
			return nil, err
		}
		if len(ph) != addr.ProgramHashSize {
			return nil, ErrMalformed.New("bad program hash length", nil)
		}
		prefixByte, e := r.ReadByte()
		if e != nil {
			return nil, ErrMalformed.New("", er.E(e))
		}
		var programHash [addr.ProgramHashSize]byte
		copy(programHash[:], ph)
		out.Address = addr.FromProgramHash(programHash, addr.Prefix(prefixByte))
		if _, e := io.ReadFull(r, out.Asset[:]); e != nil {
			return nil, ErrMalformed.New("", er.E(e))
		}
		payload, err := readVarBytes(r)
		if err != nil {
			return nil, err
		}
		out.Payload = payload
		tx.Outputs = append(tx.Outputs, out)
	}

	if e := binary.Read(r, binary.LittleEndian, &tx.LockTime); e != nil {
		return nil, ErrMalformed.New("", er.E(e))
	}

	nProg, err := readVarInt(r)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < nProg; i++ {
		code, err := readVarBytes(r)
		if err != nil {
			return nil, err
		}
		param, err := readVarBytes(r)
		if err != nil {
			return nil, err
		}
		tx.Programs = append(tx.Programs, Program{Code: code, Parameter: param})
	}

	return tx, nil
}
