package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// batchIDPattern matches the opaque batch identifier format from the
// external interfaces spec: batch(_single)?_[0-9a-f]{8,10}_YYYYMMDD_HHMMSS.
var batchIDPattern = regexp.MustCompile(`^batch(_single)?_[0-9a-f]{8,10}_\d{8}_\d{6}$`)

// NewBatchID constructs a fresh batch identifier. single distinguishes
// the initSingleEmailBatch prefix from the bulk initBatch one.
func NewBatchID(single bool, now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	prefix := "batch"
	if single {
		prefix = "batch_single"
	}
	return fmt.Sprintf("%s_%s_%s", prefix, random, now.Format("20060102_150405"))
}

// IsValidBatchID reports whether id matches the canonical batch
// identifier format.
func IsValidBatchID(id string) bool {
	return batchIDPattern.MatchString(id)
}
