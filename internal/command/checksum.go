package command

import (
	"crypto/sha256"
	"encoding/hex"
)

// Domain prefix for payload checksums. The version suffix enables a
// future algorithm migration without ambiguity against old rows.
const domainPayload = "gsync/payload/v1"

// Checksum computes the content checksum stored alongside each payload.
// Format: SHA256(domain + 0x00 + canonical payload bytes), hex encoded.
// The null separator prevents domain/data boundary ambiguity.
//
// The input must already be canonical JSON (see MarshalCanonical);
// checksums over non-canonical bytes would flag false corruption after a
// round-trip through the store.
func Checksum(canonicalPayload []byte) string {
	h := sha256.New()
	h.Write([]byte(domainPayload))
	h.Write([]byte{0x00})
	h.Write(canonicalPayload)
	return hex.EncodeToString(h.Sum(nil))
}
