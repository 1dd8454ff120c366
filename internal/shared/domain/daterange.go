package domain

import (
	"errors"
	"time"
)

// DateRange représente une période de jours calendaires, bornes incluses.
// Value Object: immuable, validé à la construction.
//
// Les bornes sont stockées à minuit dans le fuseau loc; Contains convertit
// l'instant testé dans ce même fuseau avant de comparer les dates.
type DateRange struct {
	start time.Time
	end   time.Time
	loc   *time.Location
}

// NewDateRange crée une période [start, end] en jours entiers dans loc
func NewDateRange(start, end time.Time, loc *time.Location) (DateRange, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := truncateDay(start, loc)
	e := truncateDay(end, loc)
	if e.Before(s) {
		return DateRange{}, errors.New("end date cannot be before start date")
	}
	return DateRange{start: s, end: e, loc: loc}, nil
}

// ParseDateRange construit une période depuis deux dates "2006-01-02"
func ParseDateRange(start, end string, loc *time.Location) (DateRange, error) {
	if loc == nil {
		loc = time.UTC
	}
	s, err := time.ParseInLocation(time.DateOnly, start, loc)
	if err != nil {
		return DateRange{}, err
	}
	e, err := time.ParseInLocation(time.DateOnly, end, loc)
	if err != nil {
		return DateRange{}, err
	}
	return NewDateRange(s, e, loc)
}

// Start retourne la date de début
func (dr DateRange) Start() time.Time {
	return dr.start
}

// End retourne la date de fin
func (dr DateRange) End() time.Time {
	return dr.end
}

// Contains vérifie si l'instant t tombe dans un des jours de la période
func (dr DateRange) Contains(t time.Time) bool {
	if dr.loc == nil {
		return false
	}
	d := truncateDay(t, dr.loc)
	return !d.Before(dr.start) && !d.After(dr.end)
}

func truncateDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
