// settlement-gateway/internal/metadata/metadata.go
//
// Side data for one payment travels as a tagged record list packed into a
// single opaque blob. Each processor scans the blob for its own type tag
// and privately interprets the data, so the context schema never grows
// per processor.
package metadata

import "github.com/bytedance/sonic"

type ProcessorType uint8

const (
	TypeFee ProcessorType = iota + 1
	TypeDiscount
	TypeOracle
	TypeTokenFilter
)

type Record struct {
	Type     ProcessorType `json:"type"`
	Priority uint8         `json:"priority"`
	Required bool          `json:"required"`
	Data     []byte        `json:"data,omitempty"`
}

// Pack encodes an ordered record list into one blob.
func Pack(records []Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, nil
	}
	return sonic.Marshal(records)
}

// Unpack decodes a blob; nil/empty blobs carry no records.
func Unpack(blob []byte) ([]Record, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	var records []Record
	if err := sonic.Unmarshal(blob, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// FindByType linear-scans for the first record with the given tag.
func FindByType(blob []byte, t ProcessorType) (Record, bool) {
	records, err := Unpack(blob)
	if err != nil {
		return Record{}, false
	}
	for _, r := range records {
		if r.Type == t {
			return r, true
		}
	}
	return Record{}, false
}
