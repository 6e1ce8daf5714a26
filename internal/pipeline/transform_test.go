package pipeline

import (
	"encoding/json"
	"errors"
	"incident-pipeline/internal/model"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSource = "http://data.nola.gov/resource/jsyu-nz5r.json"

func newTestTransformer(t *testing.T) *Transformer {
	t.Helper()
	tr, err := NewTransformer(testSource)
	require.NoError(t, err)
	return tr
}

func sampleRecord() model.SourceRecord {
	return model.SourceRecord{
		"nopd_item":     "A0000114",
		"mapx":          json.Number("3679178"),
		"mapy":          json.Number("534812"),
		"block_address": "001XX N Broad St",
		"zip":           "70119",
		"timecreate":    "4/1/2015 2:36",
		"timeclosed":    "4/1/2015 3:05:12",
		"typetext":      "DISTURBANCE (OTHER)",
		"priority":      "1A",
	}
}

func TestTransform(t *testing.T) {
	tr := newTestTransformer(t)

	row, err := tr.Transform(sampleRecord())
	require.NoError(t, err)

	assert.Equal(t, model.NormalizedRow{
		ID:           "A0000114",
		Datasource:   testSource,
		PointX:       "3679178",
		PointY:       "534812",
		Address:      "001XX N Broad St, 70119",
		DateTimeFrom: "2015-04-01T02:36:00-05:00",
		DateTimeTo:   "2015-04-01T02:36:00-05:00",
		ReportTime:   "2015-04-01T02:36:00-05:00",
		Class:        "DISTURBANCE (OTHER)",
		LastUpdated:  "2015-04-01T03:05:12-05:00",
	}, row)
}

func TestTransformIsDeterministic(t *testing.T) {
	tr := newTestTransformer(t)
	rec := sampleRecord()

	first, err := tr.Transform(rec)
	require.NoError(t, err)
	second, err := tr.Transform(rec)
	require.NoError(t, err)

	assert.Equal(t, first.Values(), second.Values())
}

func TestTransformMissingFields(t *testing.T) {
	tr := newTestTransformer(t)

	for _, field := range RequiredFields {
		t.Run(field, func(t *testing.T) {
			rec := sampleRecord()
			delete(rec, field)

			_, err := tr.Transform(rec)
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrMissingField))

			var mf *model.MissingFieldError
			require.ErrorAs(t, err, &mf)
			assert.Equal(t, field, mf.Field)
		})
	}

	t.Run("null zip", func(t *testing.T) {
		rec := sampleRecord()
		rec["zip"] = nil
		_, err := tr.Transform(rec)
		assert.ErrorIs(t, err, model.ErrMissingField)
	})
}

func TestApplySkipsBadRecords(t *testing.T) {
	tr := newTestTransformer(t)

	good := tr.Apply(sampleRecord())
	assert.True(t, good.OK())
	assert.Equal(t, "A0000114", good.Row.ID)

	rec := sampleRecord()
	delete(rec, "block_address")
	bad := tr.Apply(rec)
	require.False(t, bad.OK())
	assert.Equal(t, "A0000114", bad.Skipped.ItemID)
	assert.ErrorIs(t, bad.Skipped.Reason, model.ErrMissingField)

	rec = sampleRecord()
	rec["timeclosed"] = "yesterday"
	bad = tr.Apply(rec)
	require.False(t, bad.OK())
	assert.ErrorIs(t, bad.Skipped.Reason, model.ErrBadTimestamp)
}

func TestConvertTime(t *testing.T) {
	tr := newTestTransformer(t)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"unpadded daylight", "4/1/2015 2:36", "2015-04-01T02:36:00-05:00"},
		{"with seconds", "4/1/2015 14:36:09", "2015-04-01T14:36:09-05:00"},
		{"unpadded hour with seconds", "4/1/2015 2:36:09", "2015-04-01T02:36:09-05:00"},
		{"standard time", "1/15/2014 13:05", "2014-01-15T13:05:00-06:00"},
		{"padded input", "12/31/2014 23:59:59", "2014-12-31T23:59:59-06:00"},
		{"day before dst ends", "11/1/2014 12:00", "2014-11-01T12:00:00-05:00"},
		{"day after dst ends", "11/3/2014 12:00", "2014-11-03T12:00:00-06:00"},
		{"skipped spring hour", "3/9/2014 2:30", "2014-03-09T02:30:00-06:00"},
		{"after spring change", "3/9/2014 3:30", "2014-03-09T03:30:00-05:00"},
		{"repeated fall hour", "11/2/2014 1:30", "2014-11-02T01:30:00-06:00"},
		{"repeated fall hour start", "11/2/2014 1:00:00", "2014-11-02T01:00:00-06:00"},
		{"before fall change", "11/2/2014 0:59", "2014-11-02T00:59:00-05:00"},
		{"after fall change", "11/2/2014 2:30", "2014-11-02T02:30:00-06:00"},
		{"meridiem pm", "11/3/2014 1:05:00 PM", "2014-11-03T13:05:00-06:00"},
		{"meridiem am without seconds", "7/4/2014 9:15 am", "2014-07-04T09:15:00-05:00"},
		{"midnight meridiem", "7/4/2014 12:30 AM", "2014-07-04T00:30:00-05:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tr.ConvertTime("timecreate", tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConvertTimeRejectsUnknownLayouts(t *testing.T) {
	tr := newTestTransformer(t)

	for _, in := range []string{
		"",
		"2015-04-01T02:36:00",
		"4/1/2015",
		"4/1/2015 2:36 PM extra",
		"13/1/2015 2:36",
		"4/1/2015 25:00",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := tr.ConvertTime("timecreate", in)
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrBadTimestamp)

			var te *model.TimestampError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, in, te.Value)
		})
	}
}
