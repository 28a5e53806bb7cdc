package neos

import (
	"math"
	"strconv"
	"strings"

	"neo-import-export/common"
)

// NEORecord holds the raw strings of one NEO feed row
type NEORecord struct {
	Designation string
	Name        string
	Diameter    string
	Hazardous   string
}

// ApproachRecord holds the raw strings of one close-approach feed row
type ApproachRecord struct {
	Designation string
	Time        string
	Distance    string
	Velocity    string
}

// NewNearEarthObject coerces a raw NEO row.
// Blank name and blank diameter become unknown (nil); only "Y" marks a NEO hazardous.
func NewNearEarthObject(record NEORecord) (*NearEarthObject, error) {
	designation := strings.TrimSpace(record.Designation)
	if verr := common.ValidateRequired("designation", designation); verr != nil {
		return nil, common.NewError(common.ErrorTypeFormat, verr.Message).
			WithDetail("field", verr.Field)
	}

	neo := &NearEarthObject{
		Designation: designation,
		Hazardous:   strings.EqualFold(strings.TrimSpace(record.Hazardous), "Y"),
	}

	if name := strings.TrimSpace(record.Name); name != "" {
		neo.Name = &name
	}

	if raw := strings.TrimSpace(record.Diameter); raw != "" {
		diameter, err := parseFloatField(raw, "diameter", designation)
		if err != nil {
			return nil, err
		}
		neo.Diameter = &diameter
	}

	return neo, nil
}

// NewCloseApproach coerces a raw close-approach row. The result is unlinked.
func NewCloseApproach(record ApproachRecord) (*CloseApproach, error) {
	designation := strings.TrimSpace(record.Designation)
	if verr := common.ValidateRequired("des", designation); verr != nil {
		return nil, common.NewError(common.ErrorTypeFormat, verr.Message).
			WithDetail("field", verr.Field)
	}

	t, err := common.CDToDatetime(strings.TrimSpace(record.Time))
	if err != nil {
		return nil, common.WrapError(err, common.ErrorTypeFormat, "invalid approach time").
			WithDetail("field", "cd").
			WithDetail("designation", designation)
	}

	distance, err := parseFloatField(record.Distance, "dist", designation)
	if err != nil {
		return nil, err
	}

	velocity, err := parseFloatField(record.Velocity, "v_rel", designation)
	if err != nil {
		return nil, err
	}

	return &CloseApproach{
		Designation: designation,
		Time:        t,
		Distance:    distance,
		Velocity:    velocity,
	}, nil
}

// parseFloatField parses a measurement. NaN and infinities are rejected:
// an unknown value is blank, never a sentinel.
func parseFloatField(raw, field, designation string) (float64, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, common.WrapError(err, common.ErrorTypeFormat, "invalid "+field).
			WithDetail("field", field).
			WithDetail("designation", designation)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, common.Errorf(common.ErrorTypeFormat, "invalid %s %q: not a finite number", field, raw).
			WithDetail("field", field).
			WithDetail("designation", designation)
	}
	return value, nil
}
