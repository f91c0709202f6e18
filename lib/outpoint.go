package lib

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Outpoint identifies a carrier: one output of one transaction.
type Outpoint struct {
	Txid string
	Vout uint32
}

func NewOutpoint(txid string, vout uint32) Outpoint {
	return Outpoint{Txid: txid, Vout: vout}
}

// ParseOutpoint parses the 1sat "txid_vout" form.
func ParseOutpoint(s string) (op Outpoint, err error) {
	idx := strings.LastIndex(s, "_")
	if idx == -1 {
		err = fmt.Errorf("malformed outpoint: %s", s)
		return
	}
	txid := s[:idx]
	if len(txid) != 64 {
		err = fmt.Errorf("malformed outpoint txid: %s", s)
		return
	}
	if _, err = hex.DecodeString(txid); err != nil {
		err = fmt.Errorf("malformed outpoint txid: %s", s)
		return
	}
	vout, err := strconv.ParseUint(s[idx+1:], 10, 32)
	if err != nil {
		err = fmt.Errorf("malformed outpoint vout: %s", s)
		return
	}
	op.Txid = txid
	op.Vout = uint32(vout)
	return
}

func (op Outpoint) String() string {
	return fmt.Sprintf("%s_%d", op.Txid, op.Vout)
}

func (op Outpoint) IsZero() bool {
	return op.Txid == ""
}

// Bytes returns the 36-byte txid||vout form used as a database key.
func (op Outpoint) Bytes() []byte {
	b, err := hex.DecodeString(op.Txid)
	if err != nil {
		return nil
	}
	return binary.BigEndian.AppendUint32(b, op.Vout)
}

func (op Outpoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(op.String())
}

func (op *Outpoint) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseOutpoint(s)
	if err != nil {
		return err
	}
	*op = parsed
	return nil
}
