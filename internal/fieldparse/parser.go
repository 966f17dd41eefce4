// Package fieldparse normalizes heterogeneous Asana custom-field payloads
// into the canonical actual-time metric. Parsing never fails a task: a
// malformed field yields an absent value plus a warning count, and the
// caller moves on to the next task.
package fieldparse

import (
	"strconv"
	"strings"
)

// CustomField is the subset of an Asana custom field the parser cares about.
type CustomField struct {
	GID          string
	Name         string
	NumberValue  *float64
	TextValue    string
	DisplayValue string
}

// RateSource tags which accepted field identifier supplied the rate.
type RateSource string

const (
	SourceNone           RateSource = ""
	SourceMachineKey     RateSource = "machine_key"
	SourceLocalizedLabel RateSource = "localized_label"
)

// Accepted field identifiers, in precedence order. The machine key wins when
// both carry a value and they disagree.
const (
	rateMachineKey     = "time_achievement_rate"
	rateLocalizedLabel = "時間達成率"
)

var estimatedTimeNames = []string{"estimated_time", "Estimated time", "見積もり時間", "見積時間"}

var actualTimeRawNames = []string{"actual_time_raw", "実績時間"}

// Result is the tagged outcome of parsing one task's custom fields.
type Result struct {
	Rate          *float64
	RateSource    RateSource
	ActualTimeRaw *float64
	ActualTime    *float64
	Unestimated   bool
	Warnings      int
}

// Parse applies the derivation policy, first match wins:
//  1. estimated and rate present  -> actual = estimated * rate
//  2. directly reported raw value -> actual = raw
//  3. neither                     -> actual absent, task is unestimated
func Parse(fields []CustomField, estimated *float64) Result {
	res := Result{}

	res.Rate, res.RateSource, res.Warnings = parseRate(fields)

	if raw, warn := firstNumber(fields, actualTimeRawNames); raw != nil {
		res.ActualTimeRaw = raw
	} else if warn {
		res.Warnings++
	}

	switch {
	case estimated != nil && res.Rate != nil:
		v := *estimated * *res.Rate
		res.ActualTime = &v
	case res.ActualTimeRaw != nil:
		v := *res.ActualTimeRaw
		res.ActualTime = &v
	default:
		res.Unestimated = true
	}

	return res
}

// EstimatedTime extracts the estimated-time custom field, in hours.
func EstimatedTime(fields []CustomField) *float64 {
	v, _ := firstNumber(fields, estimatedTimeNames)
	return v
}

// parseRate locates the achievement rate under either accepted identifier.
// At most one logical value should exist; a disagreement between the two is
// resolved in favor of the machine key and recorded as a warning.
func parseRate(fields []CustomField) (*float64, RateSource, int) {
	warnings := 0
	var machine, localized *float64

	for _, f := range fields {
		switch {
		case f.Name == rateMachineKey && machine == nil:
			v, warn := numberFrom(f)
			if v == nil {
				if warn {
					warnings++
				}
				continue
			}
			machine = v
		case f.Name == rateLocalizedLabel && localized == nil:
			v, warn := numberFrom(f)
			if v == nil {
				if warn {
					warnings++
				}
				continue
			}
			localized = v
		}
	}

	if machine != nil {
		if localized != nil && *localized != *machine {
			warnings++
		}
		return machine, SourceMachineKey, warnings
	}
	if localized != nil {
		return localized, SourceLocalizedLabel, warnings
	}
	return nil, SourceNone, warnings
}

// firstNumber returns the first numeric value among fields matching any of
// names. The second return is true when a matching field existed but held
// no usable number.
func firstNumber(fields []CustomField, names []string) (*float64, bool) {
	sawMalformed := false
	for _, f := range fields {
		if !nameMatches(f.Name, names) {
			continue
		}
		v, warn := numberFrom(f)
		if v != nil {
			return v, false
		}
		if warn {
			sawMalformed = true
		}
	}
	return nil, sawMalformed
}

func nameMatches(name string, candidates []string) bool {
	for _, c := range candidates {
		if strings.EqualFold(name, c) {
			return true
		}
	}
	return false
}

// numberFrom interprets a single custom field. number_value wins; otherwise
// the text/display value is parsed, accepting plain decimals and percentage
// strings ("80%" -> 0.8, full-width ％ included). Non-numeric content is
// absent, not an error.
func numberFrom(f CustomField) (*float64, bool) {
	if f.NumberValue != nil {
		v := *f.NumberValue
		return &v, false
	}
	text := f.TextValue
	if text == "" {
		text = f.DisplayValue
	}
	if strings.TrimSpace(text) == "" {
		return nil, false
	}
	if v, ok := parseNumericText(text); ok {
		return &v, false
	}
	return nil, true
}

func parseNumericText(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	percent := false
	for _, suffix := range []string{"%", "％"} {
		if strings.HasSuffix(s, suffix) {
			percent = true
			s = strings.TrimSpace(strings.TrimSuffix(s, suffix))
			break
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if percent {
		v /= 100
	}
	return v, true
}
