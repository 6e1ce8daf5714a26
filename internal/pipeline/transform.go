package pipeline

import (
	"fmt"
	"incident-pipeline/internal/model"
	"strings"
	"time"
	_ "time/tzdata" // source timestamps need America/Chicago on hosts without zoneinfo
)

// Zone is the civil time zone the source publishes timestamps in.
const Zone = "America/Chicago"

// isoLayout matches Python's isoformat() for aware datetimes.
const isoLayout = "2006-01-02T15:04:05-07:00"

// Layouts tried after padding, seconds first.
var (
	clockLayouts    = []string{"01/02/2006 15:04:05", "01/02/2006 15:04"}
	meridiemLayouts = []string{"01/02/2006 03:04:05 PM", "01/02/2006 03:04 PM"}
)

// Transformer converts New Orleans calls-for-service records into HunchLab
// event rows.
type Transformer struct {
	datasource string
	loc        *time.Location
}

// NewTransformer builds a transformer stamping every row with datasource.
func NewTransformer(datasource string) (*Transformer, error) {
	loc, err := time.LoadLocation(Zone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %s: %w", Zone, err)
	}
	return &Transformer{datasource: datasource, loc: loc}, nil
}

// Transform maps one source record to a normalized row.
func (t *Transformer) Transform(rec model.SourceRecord) (model.NormalizedRow, error) {
	var row model.NormalizedRow

	if err := validateRecord(rec, RequiredFields); err != nil {
		return row, err
	}

	id, err := rec.String(model.KeyItemID)
	if err != nil {
		return row, err
	}
	pointX, err := rec.String(model.KeyPointX)
	if err != nil {
		return row, err
	}
	pointY, err := rec.String(model.KeyPointY)
	if err != nil {
		return row, err
	}
	address, err := decodeAddress(rec)
	if err != nil {
		return row, err
	}
	created, err := t.timeField(rec, model.KeyTimeCreate)
	if err != nil {
		return row, err
	}
	class, err := rec.String(model.KeyTypeText)
	if err != nil {
		return row, err
	}
	closed, err := t.timeField(rec, model.KeyTimeClosed)
	if err != nil {
		return row, err
	}

	row = model.NormalizedRow{
		ID:           id,
		Datasource:   t.datasource,
		PointX:       pointX,
		PointY:       pointY,
		Address:      address,
		DateTimeFrom: created,
		DateTimeTo:   created,
		ReportTime:   created,
		Class:        class,
		LastUpdated:  closed,
	}
	return row, nil
}

// Apply is Transform folded into a Result so callers can filter skips
// without inspecting errors at the write site.
func (t *Transformer) Apply(rec model.SourceRecord) model.Result {
	row, err := t.Transform(rec)
	if err != nil {
		return model.Result{Skipped: &model.SkippedRecord{ItemID: rec.ItemID(), Reason: err}}
	}
	return model.Result{Row: row}
}

// decodeAddress joins the block address and zip code.
func decodeAddress(rec model.SourceRecord) (string, error) {
	block, err := rec.String(model.KeyBlockAddress)
	if err != nil {
		return "", err
	}
	zip, err := rec.String(model.KeyZip)
	if err != nil {
		return "", err
	}
	return block + ", " + zip, nil
}

func (t *Transformer) timeField(rec model.SourceRecord, key string) (string, error) {
	raw, err := rec.String(key)
	if err != nil {
		return "", err
	}
	return t.ConvertTime(key, raw)
}

// ConvertTime normalizes a source timestamp such as "4/1/2015 2:36" into
// ISO-8601 with the Central offset in effect on that date.
func (t *Transformer) ConvertTime(field, raw string) (string, error) {
	bad := func(err error) (string, error) {
		return "", &model.TimestampError{Field: field, Value: raw, Err: err}
	}

	// Dates carry no leading zeroes; split, pad and reassemble.
	parts := strings.SplitN(strings.TrimSpace(raw), "/", 3)
	if len(parts) != 3 {
		return bad(nil)
	}
	rest := strings.Fields(parts[2])
	if len(rest) < 2 || len(rest) > 3 {
		return bad(nil)
	}

	clean := pad2(parts[0]) + "/" + pad2(parts[1]) + "/" + rest[0] + " " + padHour(rest[1])
	layouts := clockLayouts
	if len(rest) == 3 {
		clean += " " + strings.ToUpper(rest[2])
		layouts = meridiemLayouts
	}

	var lastErr error
	for _, layout := range layouts {
		wall, err := time.Parse(layout, clean)
		if err == nil {
			return t.localize(wall).Format(isoLayout), nil
		}
		lastErr = err
	}
	return bad(lastErr)
}

// localize places a zoneless clock reading in the Central zone. Readings
// skipped or repeated by a DST change keep their clock time and take the
// standard offset.
func (t *Transformer) localize(wall time.Time) time.Time {
	y, mo, d := wall.Date()
	h, mi, s := wall.Clock()
	ts := time.Date(y, mo, d, h, mi, s, 0, t.loc)

	if !sameClock(ts, wall) || sameClock(ts.Add(-time.Hour), wall) || sameClock(ts.Add(time.Hour), wall) {
		_, before := ts.Add(-3 * time.Hour).Zone()
		_, after := ts.Add(3 * time.Hour).Zone()
		return time.Date(y, mo, d, h, mi, s, 0, time.FixedZone("", min(before, after)))
	}
	return ts
}

func sameClock(a, b time.Time) bool {
	ah, am, as := a.Clock()
	bh, bm, bs := b.Clock()
	return ah == bh && am == bm && as == bs && a.YearDay() == b.YearDay()
}

func pad2(s string) string {
	s = strings.TrimSpace(s)
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

// padHour turns "2:36" into "02:36" and "2:36:15" into "02:36:15".
func padHour(clock string) string {
	if strings.IndexByte(clock, ':') == 1 {
		return "0" + clock
	}
	return clock
}
