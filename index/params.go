package index

import (
	"strconv"
	"strings"
	"time"

	"neo-import-export/common"
)

// QueryParams is the textual form of a query, as it arrives from HTTP or the command line.
// Empty fields are not applied.
type QueryParams struct {
	Date        string `form:"date" json:"date,omitempty"`
	StartDate   string `form:"start_date" json:"start_date,omitempty"`
	EndDate     string `form:"end_date" json:"end_date,omitempty"`
	DistanceMin string `form:"distance_min" json:"distance_min,omitempty"`
	DistanceMax string `form:"distance_max" json:"distance_max,omitempty"`
	VelocityMin string `form:"velocity_min" json:"velocity_min,omitempty"`
	VelocityMax string `form:"velocity_max" json:"velocity_max,omitempty"`
	DiameterMin string `form:"diameter_min" json:"diameter_min,omitempty"`
	DiameterMax string `form:"diameter_max" json:"diameter_max,omitempty"`
	Hazardous   string `form:"hazardous" json:"hazardous,omitempty"`
	Limit       int    `form:"limit" json:"limit,omitempty"`
}

// Options parses the parameters. Dates are YYYY-MM-DD in UTC.
func (p QueryParams) Options() (FilterOptions, error) {
	var opts FilterOptions
	var err error

	dates := []struct {
		field string
		value string
		dst   **time.Time
	}{
		{"date", p.Date, &opts.Date},
		{"start_date", p.StartDate, &opts.StartDate},
		{"end_date", p.EndDate, &opts.EndDate},
	}
	for _, d := range dates {
		if *d.dst, err = parseDate(d.field, d.value); err != nil {
			return FilterOptions{}, err
		}
	}

	floats := []struct {
		field string
		value string
		dst   **float64
	}{
		{"distance_min", p.DistanceMin, &opts.DistanceMin},
		{"distance_max", p.DistanceMax, &opts.DistanceMax},
		{"velocity_min", p.VelocityMin, &opts.VelocityMin},
		{"velocity_max", p.VelocityMax, &opts.VelocityMax},
		{"diameter_min", p.DiameterMin, &opts.DiameterMin},
		{"diameter_max", p.DiameterMax, &opts.DiameterMax},
	}
	for _, f := range floats {
		if *f.dst, err = parseFloat(f.field, f.value); err != nil {
			return FilterOptions{}, err
		}
	}

	if s := strings.TrimSpace(p.Hazardous); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			return FilterOptions{}, invalidParam("hazardous", s, err)
		}
		opts.Hazardous = &v
	}
	return opts, nil
}

// Filters parses the parameters into filters
func (p QueryParams) Filters() ([]Filter, error) {
	opts, err := p.Options()
	if err != nil {
		return nil, err
	}
	return CreateFilters(opts), nil
}

func parseDate(field, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, value, time.UTC)
	if err != nil {
		return nil, invalidParam(field, value, err)
	}
	return &t, nil
}

func parseFloat(field, value string) (*float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, invalidParam(field, value, err)
	}
	return &f, nil
}

func invalidParam(field, value string, err error) error {
	return common.WrapError(err, common.ErrorTypeConfig, "invalid "+field+" "+strconv.Quote(value)).
		WithDetail("field", field)
}
