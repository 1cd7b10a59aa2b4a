package store

import (
	"errors"
	"time"

	"gangs/internal/gang"
)

var ErrTxConflict = errors.New("transaction conflict, retry")

// recordSet assembles gang records from the per-table row scans.
type recordSet struct {
	order []string
	byID  map[string]*gang.Record
}

func newRecordSet() *recordSet {
	return &recordSet{byID: make(map[string]*gang.Record)}
}

func (s *recordSet) addGang(rec gang.Record) {
	if _, ok := s.byID[rec.ID]; ok {
		return
	}
	rec.Members = make(map[string]gang.MemberRecord)
	s.order = append(s.order, rec.ID)
	s.byID[rec.ID] = &rec
}

func (s *recordSet) addMember(gangID, player string, m gang.MemberRecord) bool {
	rec, ok := s.byID[gangID]
	if !ok {
		return false
	}
	rec.Members[player] = m
	return true
}

func (s *recordSet) addPerk(gangID, perk string) bool {
	rec, ok := s.byID[gangID]
	if !ok {
		return false
	}
	rec.Perks = append(rec.Perks, perk)
	return true
}

func (s *recordSet) addChunk(gangID string, chunk int64) bool {
	rec, ok := s.byID[gangID]
	if !ok {
		return false
	}
	rec.Territory = append(rec.Territory, chunk)
	return true
}

func (s *recordSet) list() []gang.Record {
	out := make([]gang.Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.byID[id])
	}
	return out
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return time.Unix(0, 0).UTC()
	}
	return t.UTC()
}
