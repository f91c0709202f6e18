package lib

import (
	"bytes"
	"encoding/hex"
	"sort"

	magic "github.com/bitcoinschema/go-map"
	"github.com/libsv/go-bt/v2/bscript"
)

// ordPattern is OP_FALSE OP_IF "ord": the envelope marker.
var ordPattern []byte

func init() {
	val, err := hex.DecodeString("0063036f7264")
	if err != nil {
		panic(err)
	}
	ordPattern = val
}

// mapCmdSet is the MAP protocol command for key-value assignment.
const mapCmdSet = "SET"

// Inscription is the payload carried by an ord envelope.
type Inscription struct {
	Body []byte
	Type string
}

// InscriptionScript builds the carrier locking script: P2PKH to lock,
// then OP_FALSE OP_IF "ord" OP_1 <content-type> OP_0 <body> OP_ENDIF,
// then an optional MAP side-channel as OP_RETURN <prefix> SET k v ...
// Metadata keys are emitted sorted so the script is deterministic.
func InscriptionScript(lock *bscript.Script, contentType string, body []byte, meta map[string]string) (*bscript.Script, error) {
	s := bscript.NewFromBytes(append([]byte{}, *lock...))
	if err := s.AppendOpcodes(bscript.OpFALSE, bscript.OpIF); err != nil {
		return nil, err
	}
	if err := s.AppendPushDataString("ord"); err != nil {
		return nil, err
	}
	if err := s.AppendOpcodes(bscript.Op1); err != nil {
		return nil, err
	}
	if err := s.AppendPushDataString(contentType); err != nil {
		return nil, err
	}
	if err := s.AppendOpcodes(bscript.Op0); err != nil {
		return nil, err
	}
	if err := s.AppendPushData(body); err != nil {
		return nil, err
	}
	if err := s.AppendOpcodes(bscript.OpENDIF); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := appendMap(s, meta); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// MetadataScript builds a carrier locking script holding only a MAP
// side-channel, no inscription body. Used for version-chain carriers.
func MetadataScript(lock *bscript.Script, meta map[string]string) (*bscript.Script, error) {
	s := bscript.NewFromBytes(append([]byte{}, *lock...))
	if err := appendMap(s, meta); err != nil {
		return nil, err
	}
	return s, nil
}

func appendMap(s *bscript.Script, meta map[string]string) error {
	if err := s.AppendOpcodes(bscript.OpRETURN); err != nil {
		return err
	}
	parts := [][]byte{[]byte(magic.Prefix), []byte(mapCmdSet)}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, []byte(k), []byte(meta[k]))
	}
	return s.AppendPushDataArray(parts)
}

// ParseInscription extracts the ord envelope from a locking script, or nil
// if the script carries none.
func ParseInscription(lock []byte) (ins *Inscription) {
	idx := bytes.Index(lock, ordPattern)
	if idx == -1 {
		return
	}

	idx += len(ordPattern)
	if idx >= len(lock) {
		return
	}

	script := bscript.NewFromBytes(lock[idx:])
	parts, err := bscript.DecodeParts(*script)
	if err != nil {
		return
	}

	ins = &Inscription{}
	for i := 0; i < len(parts); i++ {
		op := parts[i]
		if len(op) != 1 {
			break
		}
		switch op[0] {
		case bscript.Op0:
			if i+1 < len(parts) {
				ins.Body = parts[i+1]
			}
			return
		case bscript.Op1:
			if i+1 < len(parts) {
				ins.Type = string(parts[i+1])
			}
		case bscript.OpENDIF:
			return
		}
		i++
	}
	return
}

// ParseMap extracts the MAP side-channel from a locking script: the
// OP_RETURN push sequence <prefix> SET k v k v... Returns nil if absent
// or malformed.
func ParseMap(lock []byte) map[string]string {
	script := bscript.NewFromBytes(lock)
	parts, err := bscript.DecodeParts(*script)
	if err != nil {
		return nil
	}
	for i := 0; i < len(parts); i++ {
		if len(parts[i]) != 1 || parts[i][0] != bscript.OpRETURN {
			continue
		}
		fields := parts[i+1:]
		if len(fields) < 2 || string(fields[0]) != magic.Prefix || string(fields[1]) != mapCmdSet {
			return nil
		}
		meta := map[string]string{}
		for j := 2; j+1 < len(fields); j += 2 {
			meta[string(fields[j])] = string(fields[j+1])
		}
		return meta
	}
	return nil
}
