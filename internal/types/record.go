package types

import (
	"time"

	"github.com/google/uuid"
)

// MetricRecord is the flat, sparse row handed to storage backends for every
// processed sample. Fields that do not apply to the sample are nil.
type MetricRecord struct {
	SessionID uuid.UUID `json:"session_id"`

	FlowTimestamp *time.Time `json:"flow_timestamp,omitempty"`
	FlowValue     *float64   `json:"flow_value,omitempty"`

	CO2Timestamp *time.Time `json:"co2_timestamp,omitempty"`
	CO2Value     *float64   `json:"co2_value,omitempty"`

	BreathTimestamp *time.Time     `json:"breath_timestamp,omitempty"`
	BreathVolume    *float64       `json:"breath_volume,omitempty"`
	Breath          *BreathSegment `json:"breath,omitempty"`

	VETimestamp *time.Time `json:"ve_timestamp,omitempty"`
	VEOverVCO2  *float64   `json:"ve_over_vco2,omitempty"`
	// VEUndefined is set when the ratio could not be computed because the
	// CO2 integral was zero. VEOverVCO2 is nil in that case.
	VEUndefined bool `json:"ve_undefined,omitempty"`

	PeakTimestamp *time.Time `json:"peak_timestamp,omitempty"`
	PeakCO2       *float64   `json:"peak_co2,omitempty"`
}

// HasVE reports whether the record carries a VE/VCO2 result, defined or not
func (r MetricRecord) HasVE() bool {
	return r.VETimestamp != nil
}

// Float returns a pointer to v, for populating MetricRecord fields
func Float(v float64) *float64 {
	return &v
}

// Time returns a pointer to t, for populating MetricRecord fields
func Time(t time.Time) *time.Time {
	return &t
}
