package sales

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// generateVerificationCode builds the customer-facing lookup code for an
// offline sale: VNT-<compact timestamp><2-digit random>-<device suffix>.
// The device suffix keeps codes unique across devices of the same tenant
// that sell within the same second.
func generateVerificationCode(deviceID string, now time.Time, rnd *rand.Rand) string {
	return fmt.Sprintf("VNT-%s%02d-%s", now.Format("20060102150405"), rnd.Intn(100), deviceSuffix(deviceID))
}

func deviceSuffix(deviceID string) string {
	suffix := strings.TrimPrefix(deviceID, "DEV-")
	if len(suffix) > 4 {
		suffix = suffix[:4]
	}
	if suffix == "" {
		suffix = "0000"
	}
	return suffix
}
