package model

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// SourceRecord is one raw item from the open-data collection API.
// The schema is owned by the remote publisher, so it stays a map.
type SourceRecord map[string]interface{}

// Source record keys read by the transformer.
const (
	KeyItemID       = "nopd_item"
	KeyPointX       = "mapx"
	KeyPointY       = "mapy"
	KeyBlockAddress = "block_address"
	KeyZip          = "zip"
	KeyTimeCreate   = "timecreate"
	KeyTimeClosed   = "timeclosed"
	KeyTypeText     = "typetext"
)

// String returns the text of key, or a *MissingFieldError when the key is
// absent or null.
func (r SourceRecord) String(key string) (string, error) {
	v, ok := r[key]
	if !ok || v == nil {
		return "", &MissingFieldError{Field: key}
	}

	switch val := v.(type) {
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	default:
		return fmt.Sprintf("%v", val), nil
	}
}

// ItemID returns the record identifier, or "" when it is missing.
func (r SourceRecord) ItemID() string {
	id, err := r.String(KeyItemID)
	if err != nil {
		return ""
	}
	return id
}

// Header is the fixed first line of every output file.
var Header = []string{
	"id", "datasource", "pointx", "pointy", "address",
	"datetimefrom", "datetimeto", "report_time", "class", "last_updated",
}

// NormalizedRow is one output record in HunchLab event CSV format.
type NormalizedRow struct {
	ID           string `json:"id"`
	Datasource   string `json:"datasource"`
	PointX       string `json:"pointx"`
	PointY       string `json:"pointy"`
	Address      string `json:"address"`
	DateTimeFrom string `json:"datetimefrom"`
	DateTimeTo   string `json:"datetimeto"`
	ReportTime   string `json:"report_time"`
	Class        string `json:"class"`
	LastUpdated  string `json:"last_updated"`
}

// Values returns the row fields in Header order.
func (r NormalizedRow) Values() []string {
	return []string{
		r.ID,
		r.Datasource,
		r.PointX,
		r.PointY,
		r.Address,
		r.DateTimeFrom,
		r.DateTimeTo,
		r.ReportTime,
		r.Class,
		r.LastUpdated,
	}
}

// SkippedRecord describes a source record that could not be transformed.
type SkippedRecord struct {
	ItemID string
	Reason error
}

// Result is the outcome of transforming one source record: exactly one of
// Row or Skipped is meaningful.
type Result struct {
	Row     NormalizedRow
	Skipped *SkippedRecord
}

// OK reports whether the result carries a row.
func (r Result) OK() bool {
	return r.Skipped == nil
}
