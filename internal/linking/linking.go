// Package linking builds the quote-comparison link every outbound email
// points at, following the original system's org_utils.py link
// generation but reduced to spec.md's SHA-256(orgId-contactId-secret)
// truncated to 8 hex chars.
package linking

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Hash8Len is the number of hex characters kept from the full SHA-256
// digest, per §6.
const Hash8Len = 8

// Hash computes the 8-hex-char quote-link hash for one (orgID,
// contactID) pair under secret.
func Hash(orgID, contactID, secret string) string {
	sum := sha256.Sum256([]byte(orgID + "-" + contactID + "-" + secret))
	return fmt.Sprintf("%x", sum)[:Hash8Len]
}

// QuoteLink builds the full quote-comparison URL for one contact, in the
// form baseURL/compare?id=<orgId>-<contactId>-<hash8>.
func QuoteLink(baseURL, orgID, contactID, secret string) string {
	id := fmt.Sprintf("%s-%s-%s", orgID, contactID, Hash(orgID, contactID, secret))
	return fmt.Sprintf("%s/compare?id=%s", strings.TrimRight(baseURL, "/"), id)
}
