package schema

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"
)

var (
	ErrUnknownInstruction = errors.New("schema: unknown instruction discriminator")
	ErrTruncatedPayload   = errors.New("schema: truncated instruction payload")
)

// maxStringArg bounds string arguments so a corrupt length prefix cannot ask
// for gigabytes.
const maxStringArg = 4096

// Decoded is the result of decoding one instruction payload.
type Decoded struct {
	Name        string
	Args        map[string]any
	Instruction *Instruction
}

// Decoder decodes opaque instruction payloads against a registry.
type Decoder struct {
	registry *Registry
	logger   *zap.Logger
}

func NewDecoder(registry *Registry, logger *zap.Logger) *Decoder {
	return &Decoder{
		registry: registry,
		logger:   logger.Named("schema-decoder"),
	}
}

// DecodeBase58 decodes a base58-encoded payload as delivered by the indexer.
func (d *Decoder) DecodeBase58(payload string) (*Decoded, error) {
	raw, err := base58.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("schema: payload is not base58: %w", err)
	}
	return d.Decode(raw)
}

// Decode parses the 8-byte discriminator and the borsh-encoded arguments.
// Pure: the same payload always yields the same result.
func (d *Decoder) Decode(payload []byte) (*Decoded, error) {
	if len(payload) < 8 {
		return nil, ErrTruncatedPayload
	}

	var disc [8]byte
	copy(disc[:], payload[:8])
	ins, ok := d.registry.Lookup(disc)
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrUnknownInstruction, disc)
	}

	args, err := decodeArgs(payload[8:], ins.Args)
	if err != nil {
		return nil, fmt.Errorf("schema: bad args for %s: %w", ins.Name, err)
	}

	return &Decoded{Name: ins.Name, Args: args, Instruction: ins}, nil
}

// decodeArgs reads the borsh-encoded argument sequence. The program's wire
// format is little-endian with u32-length-prefixed strings and flag-prefixed
// options, the same layout the on-chain builder writes.
func decodeArgs(data []byte, specs []ArgSpec) (map[string]any, error) {
	args := make(map[string]any, len(specs))
	offset := 0

	need := func(n int) error {
		if offset+n > len(data) {
			return ErrTruncatedPayload
		}
		return nil
	}

	for _, spec := range specs {
		switch spec.Type {
		case ArgU8:
			if err := need(1); err != nil {
				return nil, err
			}
			args[spec.Name] = data[offset]
			offset++

		case ArgBool:
			if err := need(1); err != nil {
				return nil, err
			}
			args[spec.Name] = data[offset] != 0
			offset++

		case ArgU32:
			if err := need(4); err != nil {
				return nil, err
			}
			args[spec.Name] = binary.LittleEndian.Uint32(data[offset:])
			offset += 4

		case ArgU64:
			if err := need(8); err != nil {
				return nil, err
			}
			args[spec.Name] = binary.LittleEndian.Uint64(data[offset:])
			offset += 8

		case ArgI64:
			if err := need(8); err != nil {
				return nil, err
			}
			args[spec.Name] = int64(binary.LittleEndian.Uint64(data[offset:]))
			offset += 8

		case ArgString:
			if err := need(4); err != nil {
				return nil, err
			}
			length := int(binary.LittleEndian.Uint32(data[offset:]))
			offset += 4
			if length > maxStringArg {
				return nil, fmt.Errorf("string arg %q length %d exceeds limit", spec.Name, length)
			}
			if err := need(length); err != nil {
				return nil, err
			}
			args[spec.Name] = string(data[offset : offset+length])
			offset += length

		case ArgPublicKey:
			if err := need(32); err != nil {
				return nil, err
			}
			key := solana.PublicKeyFromBytes(data[offset : offset+32])
			args[spec.Name] = key.String()
			offset += 32

		case ArgOptionU32:
			present, err := readOptionFlag(data, &offset)
			if err != nil {
				return nil, err
			}
			if !present {
				args[spec.Name] = nil
				continue
			}
			if err := need(4); err != nil {
				return nil, err
			}
			args[spec.Name] = binary.LittleEndian.Uint32(data[offset:])
			offset += 4

		case ArgOptionU64:
			present, err := readOptionFlag(data, &offset)
			if err != nil {
				return nil, err
			}
			if !present {
				args[spec.Name] = nil
				continue
			}
			if err := need(8); err != nil {
				return nil, err
			}
			args[spec.Name] = binary.LittleEndian.Uint64(data[offset:])
			offset += 8

		default:
			return nil, fmt.Errorf("unsupported arg type %d for %q", spec.Type, spec.Name)
		}
	}

	return args, nil
}

func readOptionFlag(data []byte, offset *int) (bool, error) {
	if *offset+1 > len(data) {
		return false, ErrTruncatedPayload
	}
	flag := data[*offset]
	*offset++
	if flag > 1 {
		return false, fmt.Errorf("invalid option flag %d", flag)
	}
	return flag == 1, nil
}
