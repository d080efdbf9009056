package record

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// Domain prefixes for content-derived digests.
// The version suffix allows a future algorithm migration.
const (
	DomainRowHash = "epar/row/v1"
)

// NamespaceEMA is the UUIDv5 namespace for entity ids, derived from the
// EMA domain name so ids agree with every other consumer of the dataset.
var NamespaceEMA = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("ema.europa.eu"))

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EntityID derives the durable surrogate key for a source id.
// The same source id always yields the same entity id.
func EntityID(sourceID string) string {
	return uuid.NewSHA1(NamespaceEMA, []byte(sourceID)).String()
}

// RowHash digests the change-relevant subset of a record: status, every
// normalized attribute and the raw organisation name. Organisation id,
// family id and ingestion timestamps are deliberately outside the hash.
func RowHash(status Status, attrs Attributes, organizationNameRaw string) (string, error) {
	if attrs == nil {
		attrs = Attributes{}
	}
	obj := Attributes{
		"status":                String(status),
		"attributes":            attrs,
		"organization_name_raw": String(organizationNameRaw),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("RowHash: failed to marshal: %w", err)
	}

	return hashWithDomain(DomainRowHash, canonical), nil
}

// MustRowHash is like RowHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustRowHash(status Status, attrs Attributes, organizationNameRaw string) string {
	h, err := RowHash(status, attrs, organizationNameRaw)
	if err != nil {
		panic(err)
	}
	return h
}
