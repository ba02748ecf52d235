package memory

import (
	"encoding/json"
	"fmt"
)

// Snapshot bucket names shared by the durable backends. Each bucket is stored
// as one JSON document keyed by record id.
const (
	BucketSlots   = "slots"
	BucketPallets = "pallets"
)

// Buckets lists the snapshot buckets in persistence order.
var Buckets = []string{BucketSlots, BucketPallets}

// EncodeBucket marshals one snapshot bucket.
func EncodeBucket(snapshot Snapshot, bucket string) ([]byte, error) {
	switch bucket {
	case BucketSlots:
		return json.Marshal(snapshot.Slots)
	case BucketPallets:
		return json.Marshal(snapshot.Pallets)
	default:
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}
}

// DecodeBucket unmarshals payload into the matching snapshot collection.
// Unknown buckets are ignored so older tables can carry extra rows.
func DecodeBucket(snapshot *Snapshot, bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var target any
	switch bucket {
	case BucketSlots:
		target = &snapshot.Slots
	case BucketPallets:
		target = &snapshot.Pallets
	default:
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}
