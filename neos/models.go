package neos

import (
	"fmt"
	"strconv"
	"time"

	"neo-import-export/common"
)

// NearEarthObject is an orbiting body from the NEO feed.
// Designation is the primary key across the loaded collection.
// Name and Diameter are nil when the feed leaves them blank.
type NearEarthObject struct {
	Designation string   `json:"designation"`
	Name        *string  `json:"name"`
	Diameter    *float64 `json:"diameter_km"`
	Hazardous   bool     `json:"potentially_hazardous"`

	// Filled by the index when approaches are linked
	Approaches []*CloseApproach `json:"-"`
}

// CloseApproach is one close approach of a NEO to Earth.
// Designation holds the foreign key until the index links NEO.
type CloseApproach struct {
	Designation string    `json:"-"`
	Time        time.Time `json:"-"`
	Distance    float64   `json:"distance_au"`
	Velocity    float64   `json:"velocity_km_s"`

	NEO *NearEarthObject `json:"-"`
}

// FullName returns "designation (name)", or the bare designation when unnamed
func (n *NearEarthObject) FullName() string {
	if n.Name == nil {
		return n.Designation
	}
	return fmt.Sprintf("%s (%s)", n.Designation, *n.Name)
}

// NameString returns the name or "" when unknown
func (n *NearEarthObject) NameString() string {
	if n.Name == nil {
		return ""
	}
	return *n.Name
}

// DiameterString returns the diameter in km as plain text or "" when unknown
func (n *NearEarthObject) DiameterString() string {
	if n.Diameter == nil {
		return ""
	}
	return FormatFloat(*n.Diameter)
}

func (n *NearEarthObject) String() string {
	diameter := "an unknown diameter"
	if n.Diameter != nil {
		diameter = fmt.Sprintf("a diameter of %.3f km", *n.Diameter)
	}
	hazard := "is not"
	if n.Hazardous {
		hazard = "is"
	}
	return fmt.Sprintf("NEO %s has %s and %s potentially hazardous.", n.FullName(), diameter, hazard)
}

// TimeString returns the approach time in its canonical "YYYY-MM-DD HH:MM:SS" form
func (ca *CloseApproach) TimeString() string {
	return ca.Time.UTC().Format(common.CanonicalLayout)
}

// Link attaches the approach to its NEO. An approach can be linked only once,
// and only to the NEO its designation names.
func (ca *CloseApproach) Link(neo *NearEarthObject) error {
	if neo == nil {
		return common.Errorf(common.ErrorTypeStructural, "cannot link approach of %s to nil NEO", ca.Designation)
	}
	if ca.NEO != nil {
		return common.Errorf(common.ErrorTypeStructural, "approach of %s at %s already linked", ca.Designation, ca.TimeString())
	}
	if neo.Designation != ca.Designation {
		return common.Errorf(common.ErrorTypeStructural, "approach of %s cannot link to NEO %s", ca.Designation, neo.Designation)
	}
	ca.NEO = neo
	neo.Approaches = append(neo.Approaches, ca)
	return nil
}

func (ca *CloseApproach) String() string {
	who := ca.Designation
	if ca.NEO != nil {
		who = ca.NEO.FullName()
	}
	when, err := common.DatetimeToStr(ca.Time)
	if err != nil {
		when = "an unknown time"
	}
	return fmt.Sprintf("On %s, '%s' approaches Earth at a distance of %.2f au and a velocity of %.2f km/s.",
		when, who, ca.Distance, ca.Velocity)
}

// FormatFloat renders f as the shortest text that parses back to f
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// FormatBool renders the hazardous flag as "True" or "False"
func FormatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
