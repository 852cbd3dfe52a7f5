package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// maskEmail keeps the domain and first character of the local part so a
// log line stays recognizable without exposing the address.
func maskEmail(email string) string {
	if email == "" {
		return ""
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return "***"
	}
	if len(local) <= 2 {
		return "***@" + domain
	}
	return local[:1] + "***@" + domain
}

// hashEmail gives a stable short token for correlating log lines about
// the same address.
func hashEmail(email string) string {
	if email == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])[:8]
}

// maskUserID is hashEmail for member ids.
func maskUserID(memberID int64) string {
	return hashEmail(fmt.Sprintf("member:%d", memberID))
}
