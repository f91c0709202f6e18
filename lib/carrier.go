package lib

// Carrier is an unspent output bound to the funding address. The publish
// engine provisions one precisely-sized carrier per job so job transactions
// need no change output.
type Carrier struct {
	Outpoint Outpoint `json:"outpoint"`
	Satoshis uint64   `json:"satoshis"`
	// Script is the hex-encoded locking script.
	Script string `json:"script"`
}

// ChainTip is the latest carrier of a spend-and-recreate chain, with the
// side-channel metadata attached to it.
type ChainTip struct {
	Outpoint Outpoint          `json:"outpoint"`
	Satoshis uint64            `json:"satoshis"`
	Script   string            `json:"script"`
	Map      map[string]string `json:"map,omitempty"`
}
