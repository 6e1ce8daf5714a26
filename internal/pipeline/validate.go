package pipeline

import (
	"incident-pipeline/internal/model"
)

// RequiredFields lists the source keys every record must carry, in the order
// the transformer reads them.
var RequiredFields = []string{
	model.KeyItemID,
	model.KeyPointX,
	model.KeyPointY,
	model.KeyBlockAddress,
	model.KeyZip,
	model.KeyTimeCreate,
	model.KeyTypeText,
	model.KeyTimeClosed,
}

// validateRecord checks that every required field is present and non-null.
// The first missing field is reported.
func validateRecord(rec model.SourceRecord, required []string) error {
	for _, field := range required {
		if v, ok := rec[field]; !ok || v == nil {
			return &model.MissingFieldError{Field: field}
		}
	}
	return nil
}
