// Package index links close approaches to their NEOs and answers lookups and
// filtered queries over the linked collection.
package index

import (
	"iter"

	"neo-import-export/common"
	"neo-import-export/neos"
)

// NEODatabase holds a linked NEO and close-approach collection.
// It is read-only once New returns.
type NEODatabase struct {
	neos       []*neos.NearEarthObject
	approaches []*neos.CloseApproach

	byDesignation map[string]*neos.NearEarthObject
	byName        map[string]*neos.NearEarthObject
}

// New indexes the NEOs by designation and name, then links every approach to
// the NEO its designation names. Duplicate designations and approaches whose
// designation matches no NEO are structural errors.
func New(neoList []*neos.NearEarthObject, approachList []*neos.CloseApproach) (*NEODatabase, error) {
	db := &NEODatabase{
		neos:          neoList,
		approaches:    approachList,
		byDesignation: make(map[string]*neos.NearEarthObject, len(neoList)),
		byName:        make(map[string]*neos.NearEarthObject),
	}

	for _, neo := range neoList {
		if _, dup := db.byDesignation[neo.Designation]; dup {
			return nil, common.Errorf(common.ErrorTypeStructural, "duplicate designation %q", neo.Designation).
				WithDetail("designation", neo.Designation)
		}
		db.byDesignation[neo.Designation] = neo
		if neo.Name != nil {
			if _, taken := db.byName[*neo.Name]; !taken {
				db.byName[*neo.Name] = neo
			}
		}
	}

	for i, approach := range approachList {
		neo, ok := db.byDesignation[approach.Designation]
		if !ok {
			return nil, common.Errorf(common.ErrorTypeStructural, "approach references unknown designation %q", approach.Designation).
				WithDetail("designation", approach.Designation).
				WithDetail("row", i+1)
		}
		if err := approach.Link(neo); err != nil {
			return nil, err
		}
	}

	return db, nil
}

// NEOs returns the NEOs in feed order
func (db *NEODatabase) NEOs() []*neos.NearEarthObject {
	return db.neos
}

// Approaches returns the linked approaches in feed order
func (db *NEODatabase) Approaches() []*neos.CloseApproach {
	return db.approaches
}

// GetNEOByDesignation returns the NEO with the given primary designation, or nil
func (db *NEODatabase) GetNEOByDesignation(designation string) *neos.NearEarthObject {
	return db.byDesignation[designation]
}

// GetNEOByName returns the NEO with the given name, or nil. Names are matched exactly.
func (db *NEODatabase) GetNEOByName(name string) *neos.NearEarthObject {
	if name == "" {
		return nil
	}
	return db.byName[name]
}

// Query yields the approaches, in feed order, that match every filter
func (db *NEODatabase) Query(filters ...Filter) iter.Seq[*neos.CloseApproach] {
	return func(yield func(*neos.CloseApproach) bool) {
		for _, approach := range db.approaches {
			if matchesAll(approach, filters) && !yield(approach) {
				return
			}
		}
	}
}

// Limit yields at most n values from seq. A non-positive n yields everything.
func Limit[T any](seq iter.Seq[T], n int) iter.Seq[T] {
	if n <= 0 {
		return seq
	}
	return func(yield func(T) bool) {
		count := 0
		for v := range seq {
			if !yield(v) {
				return
			}
			count++
			if count >= n {
				return
			}
		}
	}
}

func matchesAll(approach *neos.CloseApproach, filters []Filter) bool {
	for _, f := range filters {
		if !f.Matches(approach) {
			return false
		}
	}
	return true
}
