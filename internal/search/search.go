// Package search implements the contact search and filtering engines: exact
// per-field substring search, free-text search across all name and address
// fields, and the upcoming-birthday window computation.
//
// The engines hold no state of their own. Each call loads the requesting
// user's contacts through the ContactSource and filters them in memory, so a
// result always reflects the store contents at call time. Filtering in the
// application instead of with SQL LIKE keeps the matching case-sensitive
// regardless of the collation of the underlying table.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gitlab.com/dirk.krummacker/contacts-backend/internal/model"
)

// Field names accepted by SearchByField.
const (
	FieldFirstName = "firstname"
	FieldLastName  = "lastname"
	FieldEmail     = "email"
	FieldPhone     = "phone"
)

// UnknownFieldError reports a field name outside the searchable set.
type UnknownFieldError struct {
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown search field %q", e.Field)
}

// ContactSource is the store capability the engines consume. The production
// implementation is *store.Store.
type ContactSource interface {
	ContactsByOwner(ctx context.Context, ownerID int64) ([]model.Contact, error)
}

// Engine answers search queries for one contact source. Concurrent calls are
// safe because the engine never mutates contacts or its own fields.
type Engine struct {
	src ContactSource
	now func() time.Time
}

// NewEngine creates a search engine on top of the given contact source.
func NewEngine(src ContactSource) *Engine {
	return &Engine{src: src, now: time.Now}
}

// fieldOf returns the accessor for the named searchable field, or an
// UnknownFieldError for anything outside the fixed set.
func fieldOf(field string) (func(model.Contact) string, error) {
	switch field {
	case FieldFirstName:
		return func(c model.Contact) string { return c.FirstName }, nil
	case FieldLastName:
		return func(c model.Contact) string { return c.LastName }, nil
	case FieldEmail:
		return func(c model.Contact) string { return c.Email }, nil
	case FieldPhone:
		return func(c model.Contact) string { return c.Phone }, nil
	default:
		return nil, &UnknownFieldError{Field: field}
	}
}

// SearchByField returns all contacts of the owner whose named field contains
// query as a case-sensitive substring. An empty query matches every contact.
// The store's iteration order is preserved. Store failures propagate
// unchanged; an unknown field name fails fast before the store is consulted.
func (e *Engine) SearchByField(ctx context.Context, ownerID int64, field, query string) ([]model.Contact, error) {
	get, err := fieldOf(field)
	if err != nil {
		return nil, err
	}
	contacts, err := e.src.ContactsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	matched := make([]model.Contact, 0, len(contacts))
	for _, contact := range contacts {
		if strings.Contains(get(contact), query) {
			matched = append(matched, contact)
		}
	}
	return matched, nil
}

// SearchByPartialInfo returns all contacts of the owner where token is a
// case-sensitive substring of the first name, last name, email or phone. Each
// contact appears at most once no matter how many fields match, because the
// decision is made in a single pass per contact. An empty token matches every
// contact; no match yields an empty slice, not an error.
func (e *Engine) SearchByPartialInfo(ctx context.Context, ownerID int64, token string) ([]model.Contact, error) {
	contacts, err := e.src.ContactsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	matched := make([]model.Contact, 0, len(contacts))
	for _, contact := range contacts {
		if strings.Contains(contact.FirstName, token) ||
			strings.Contains(contact.LastName, token) ||
			strings.Contains(contact.Email, token) ||
			strings.Contains(contact.Phone, token) {
			matched = append(matched, contact)
		}
	}
	return matched, nil
}

// BirthdayWindow returns the owner's contacts whose next birthday occurrence
// falls within shiftDays from today, both ends inclusive. The occurrence is
// first evaluated in the current year; if it already passed, the next year is
// used, so a birthday today is always included for a non-negative shift. A
// negative shift is accepted but can never match because the adjusted day
// count is never below zero.
//
// February 29 birthdays in a non-leap candidate year fall on March 1. That is
// the behavior of time.Date, which normalizes out-of-range days, and it is
// the documented policy here.
//
// Results keep the store's iteration order; they are not sorted by proximity.
func (e *Engine) BirthdayWindow(ctx context.Context, ownerID int64, shiftDays int) ([]model.Contact, error) {
	contacts, err := e.src.ContactsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	today := midnightUTC(e.now())
	matched := make([]model.Contact, 0, len(contacts))
	for _, contact := range contacts {
		if daysUntilBirthday(today, contact.Birthday) <= shiftDays {
			matched = append(matched, contact)
		}
	}
	return matched, nil
}

// daysUntilBirthday computes the number of whole days from today until the
// next occurrence of the birthday's month and day. The result is zero when
// the birthday is today and never negative.
func daysUntilBirthday(today time.Time, birthday time.Time) int {
	occurrence := time.Date(today.Year(), birthday.Month(), birthday.Day(), 0, 0, 0, 0, time.UTC)
	days := wholeDays(occurrence.Sub(today))
	if days < 0 {
		occurrence = time.Date(today.Year()+1, birthday.Month(), birthday.Day(), 0, 0, 0, 0, time.UTC)
		days = wholeDays(occurrence.Sub(today))
	}
	return days
}

// midnightUTC truncates a point in time to the start of its day in UTC.
func midnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func wholeDays(d time.Duration) int {
	return int(d / (24 * time.Hour))
}
