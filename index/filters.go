package index

import (
	"fmt"
	"time"

	"neo-import-export/neos"
)

// Filter decides whether a close approach belongs in a query result
type Filter interface {
	Matches(approach *neos.CloseApproach) bool
	fmt.Stringer
}

// Comparison operators used by attribute filters
type Op string

const (
	OpEqual Op = "=="
	OpGE    Op = ">="
	OpLE    Op = "<="
)

// FilterOptions collects the optional query criteria. Nil fields are ignored.
type FilterOptions struct {
	Date        *time.Time `json:"date,omitempty"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	DistanceMin *float64   `json:"distance_min,omitempty"`
	DistanceMax *float64   `json:"distance_max,omitempty"`
	VelocityMin *float64   `json:"velocity_min,omitempty"`
	VelocityMax *float64   `json:"velocity_max,omitempty"`
	DiameterMin *float64   `json:"diameter_min,omitempty"`
	DiameterMax *float64   `json:"diameter_max,omitempty"`
	Hazardous   *bool      `json:"hazardous,omitempty"`
}

// dateFilter compares the calendar date (UTC) of an approach
type dateFilter struct {
	op    Op
	value time.Time
}

func (f dateFilter) Matches(approach *neos.CloseApproach) bool {
	return compareDates(approach.Time, f.value, f.op)
}

func (f dateFilter) String() string {
	return fmt.Sprintf("date %s %s", f.op, f.value.Format(time.DateOnly))
}

// floatFilter compares a numeric attribute. Unknown values never match.
type floatFilter struct {
	name  string
	op    Op
	value float64
	get   func(*neos.CloseApproach) (float64, bool)
}

func (f floatFilter) Matches(approach *neos.CloseApproach) bool {
	v, ok := f.get(approach)
	if !ok {
		return false
	}
	switch f.op {
	case OpGE:
		return v >= f.value
	case OpLE:
		return v <= f.value
	default:
		return v == f.value
	}
}

func (f floatFilter) String() string {
	return fmt.Sprintf("%s %s %s", f.name, f.op, neos.FormatFloat(f.value))
}

type hazardousFilter bool

func (f hazardousFilter) Matches(approach *neos.CloseApproach) bool {
	return approach.NEO != nil && approach.NEO.Hazardous == bool(f)
}

func (f hazardousFilter) String() string {
	return fmt.Sprintf("hazardous == %t", bool(f))
}

// CreateFilters turns the set options into filters
func CreateFilters(opts FilterOptions) []Filter {
	var filters []Filter

	if opts.Date != nil {
		filters = append(filters, dateFilter{op: OpEqual, value: *opts.Date})
	}
	if opts.StartDate != nil {
		filters = append(filters, dateFilter{op: OpGE, value: *opts.StartDate})
	}
	if opts.EndDate != nil {
		filters = append(filters, dateFilter{op: OpLE, value: *opts.EndDate})
	}

	distance := func(ca *neos.CloseApproach) (float64, bool) { return ca.Distance, true }
	velocity := func(ca *neos.CloseApproach) (float64, bool) { return ca.Velocity, true }
	diameter := func(ca *neos.CloseApproach) (float64, bool) {
		if ca.NEO == nil || ca.NEO.Diameter == nil {
			return 0, false
		}
		return *ca.NEO.Diameter, true
	}

	filters = appendFloat(filters, "distance", OpGE, opts.DistanceMin, distance)
	filters = appendFloat(filters, "distance", OpLE, opts.DistanceMax, distance)
	filters = appendFloat(filters, "velocity", OpGE, opts.VelocityMin, velocity)
	filters = appendFloat(filters, "velocity", OpLE, opts.VelocityMax, velocity)
	filters = appendFloat(filters, "diameter", OpGE, opts.DiameterMin, diameter)
	filters = appendFloat(filters, "diameter", OpLE, opts.DiameterMax, diameter)

	if opts.Hazardous != nil {
		filters = append(filters, hazardousFilter(*opts.Hazardous))
	}

	return filters
}

func appendFloat(filters []Filter, name string, op Op, value *float64, get func(*neos.CloseApproach) (float64, bool)) []Filter {
	if value == nil {
		return filters
	}
	return append(filters, floatFilter{name: name, op: op, value: *value, get: get})
}

func compareDates(t, value time.Time, op Op) bool {
	ty, tm, td := t.UTC().Date()
	vy, vm, vd := value.UTC().Date()
	a := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	b := time.Date(vy, vm, vd, 0, 0, 0, 0, time.UTC)
	switch op {
	case OpGE:
		return !a.Before(b)
	case OpLE:
		return !a.After(b)
	default:
		return a.Equal(b)
	}
}
