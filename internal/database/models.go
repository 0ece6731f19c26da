package database

import (
	"time"

	"github.com/chrissnell/capnograph/internal/types"
)

// MetricRow is one metric record as stored in the breath_metrics hypertable
type MetricRow struct {
	Time          time.Time  `gorm:"column:time;not null"`
	SessionID     string     `gorm:"column:session_id;not null"`
	FlowTime      *time.Time `gorm:"column:flow_time"`
	FlowSLPM      *float64   `gorm:"column:flow_slpm"`
	CO2Time       *time.Time `gorm:"column:co2_time"`
	CO2PPM        *float64   `gorm:"column:co2_ppm"`
	BreathTime    *time.Time `gorm:"column:breath_time"`
	BreathStart   *time.Time `gorm:"column:breath_start"`
	BreathSamples *int       `gorm:"column:breath_samples"`
	BreathVolume  *float64   `gorm:"column:breath_volume"`
	VETime        *time.Time `gorm:"column:ve_time"`
	VEOverVCO2    *float64   `gorm:"column:ve_over_vco2"`
	VEUndefined   bool       `gorm:"column:ve_undefined"`
	PeakTime      *time.Time `gorm:"column:peak_time"`
	PeakCO2PPM    *float64   `gorm:"column:peak_co2_ppm"`
}

// TableName specifies the table name for MetricRow
func (MetricRow) TableName() string {
	return "breath_metrics"
}

// NewMetricRow converts a pipeline record into a row. The row time is the
// timestamp of the sample that produced the record.
func NewMetricRow(r types.MetricRecord) MetricRow {
	row := MetricRow{
		SessionID:    r.SessionID.String(),
		FlowTime:     r.FlowTimestamp,
		FlowSLPM:     r.FlowValue,
		CO2Time:      r.CO2Timestamp,
		CO2PPM:       r.CO2Value,
		BreathTime:   r.BreathTimestamp,
		BreathVolume: r.BreathVolume,
		VETime:       r.VETimestamp,
		VEOverVCO2:   r.VEOverVCO2,
		VEUndefined:  r.VEUndefined,
		PeakTime:     r.PeakTimestamp,
		PeakCO2PPM:   r.PeakCO2,
	}

	switch {
	case r.FlowTimestamp != nil:
		row.Time = *r.FlowTimestamp
	case r.CO2Timestamp != nil:
		row.Time = *r.CO2Timestamp
	default:
		row.Time = time.Now()
	}

	if r.Breath != nil {
		start := r.Breath.StartTime
		samples := r.Breath.SampleCount
		row.BreathStart = &start
		row.BreathSamples = &samples
	}

	return row
}
