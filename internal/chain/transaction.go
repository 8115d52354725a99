package chain

import "encoding/json"

// Transaction is a single transfer. It is immutable once created and
// compared structurally across all three fields for pool de-duplication.
type Transaction struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Value     int32  `json:"value"`
}

// Equal reports structural equality across sender, recipient and value.
func (t Transaction) Equal(o Transaction) bool {
	return t.Sender == o.Sender && t.Recipient == o.Recipient && t.Value == o.Value
}

// Encode serializes the transaction to the JSON string stored inside a
// mined block's transactions list.
func (t Transaction) Encode() (string, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
