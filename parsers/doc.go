// Package parsers extracts NEO and close-approach records from the two source feeds.
//
// The NEO feed is CSV with a header row. Columns are located by name (pdes,
// name, diameter, pha), so column order does not matter and extra columns are
// ignored:
//
//	neos, err := parsers.LoadNEOs("data/neos.csv")
//
// The close-approach feed is a JSON document holding a "fields" list and a
// "data" matrix whose rows are aligned to it. The des, cd, dist and v_rel
// fields are located through the field list:
//
//	approaches, err := parsers.LoadApproaches("data/cad.json")
//
// Both feeds are read in full before returning. Any missing column or field,
// short row, or unparsable value fails the whole load with a
// common.ErrorTypeFormat error; there is no skip-and-continue mode. Approaches
// are returned unlinked: each carries only its NEO's designation until the
// index links it.
package parsers
