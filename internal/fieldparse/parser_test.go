package fieldparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func fptr(v float64) *float64 { return &v }

func rateField(name string, number *float64, text string) CustomField {
	return CustomField{Name: name, NumberValue: number, TextValue: text}
}

func TestParseDerivationPolicy(t *testing.T) {
	tests := []struct {
		name        string
		fields      []CustomField
		estimated   *float64
		wantActual  *float64
		unestimated bool
	}{
		{
			name:       "estimated and rate present",
			fields:     []CustomField{rateField("time_achievement_rate", fptr(0.8), "")},
			estimated:  fptr(10),
			wantActual: fptr(8),
		},
		{
			name: "rate absent falls back to raw",
			fields: []CustomField{
				{Name: "actual_time_raw", NumberValue: fptr(5)},
			},
			estimated:  fptr(10),
			wantActual: fptr(5),
		},
		{
			name: "rate without estimate falls back to raw",
			fields: []CustomField{
				rateField("time_achievement_rate", fptr(0.8), ""),
				{Name: "actual_time_raw", NumberValue: fptr(5)},
			},
			estimated:  nil,
			wantActual: fptr(5),
		},
		{
			name:        "all inputs absent",
			fields:      nil,
			estimated:   nil,
			wantActual:  nil,
			unestimated: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Parse(tt.fields, tt.estimated)
			if tt.wantActual == nil {
				assert.Nil(t, res.ActualTime)
			} else {
				assert.NotNil(t, res.ActualTime)
				assert.InDelta(t, *tt.wantActual, *res.ActualTime, 1e-9)
			}
			assert.Equal(t, tt.unestimated, res.Unestimated)
		})
	}
}

func TestParsePercentageStrings(t *testing.T) {
	tests := []struct {
		text string
		want *float64
	}{
		{"80%", fptr(0.8)},
		{"80％", fptr(0.8)},
		{"0.8", fptr(0.8)},
		{" 125 % ", fptr(1.25)},
		{"abc", nil},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			res := Parse([]CustomField{rateField("time_achievement_rate", nil, tt.text)}, fptr(10))
			if tt.want == nil {
				assert.Nil(t, res.Rate)
			} else {
				assert.NotNil(t, res.Rate)
				assert.InDelta(t, *tt.want, *res.Rate, 1e-9)
			}
		})
	}
}

func TestParseMalformedRateIsWarningNotError(t *testing.T) {
	res := Parse([]CustomField{rateField("time_achievement_rate", nil, "abc")}, fptr(10))

	assert.Nil(t, res.Rate)
	assert.Nil(t, res.ActualTime)
	assert.True(t, res.Unestimated)
	assert.Equal(t, 1, res.Warnings)
}

func TestParseConflictPrefersMachineKey(t *testing.T) {
	res := Parse([]CustomField{
		rateField("時間達成率", fptr(0.5), ""),
		rateField("time_achievement_rate", fptr(0.8), ""),
	}, fptr(10))

	assert.Equal(t, SourceMachineKey, res.RateSource)
	assert.InDelta(t, 0.8, *res.Rate, 1e-9)
	assert.InDelta(t, 8.0, *res.ActualTime, 1e-9)
	assert.Equal(t, 1, res.Warnings, "conflicting values should warn")
}

func TestParseLocalizedLabelAlone(t *testing.T) {
	res := Parse([]CustomField{rateField("時間達成率", nil, "80%")}, fptr(10))

	assert.Equal(t, SourceLocalizedLabel, res.RateSource)
	assert.InDelta(t, 8.0, *res.ActualTime, 1e-9)
	assert.Zero(t, res.Warnings)
}

func TestParseAgreementDoesNotWarn(t *testing.T) {
	res := Parse([]CustomField{
		rateField("time_achievement_rate", fptr(0.8), ""),
		rateField("時間達成率", fptr(0.8), ""),
	}, fptr(10))

	assert.Zero(t, res.Warnings)
	assert.Equal(t, SourceMachineKey, res.RateSource)
}

func TestEstimatedTime(t *testing.T) {
	fields := []CustomField{
		{Name: "Estimated time", NumberValue: fptr(12)},
	}
	got := EstimatedTime(fields)
	assert.NotNil(t, got)
	assert.InDelta(t, 12.0, *got, 1e-9)

	assert.Nil(t, EstimatedTime(nil))
}
