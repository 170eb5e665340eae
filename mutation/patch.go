package mutation

import (
	"github.com/google/uuid"
)

const tempIDPrefix = "temp-"

// Placeholder is a record that can stand in for a server record until the
// backend confirms it.
type Placeholder interface {
	PlaceholderID() string
	RecordID() int64
}

// NewTempID names an optimistic record until the backend assigns its id.
func NewTempID() string {
	return tempIDPrefix + uuid.NewString()
}

// Patch helpers never modify their input slice.

func Append[E any](items ...E) func([]E) []E {
	return func(current []E) []E {
		out := make([]E, 0, len(current)+len(items))
		out = append(out, current...)
		return append(out, items...)
	}
}

func RemoveWhere[E any](match func(E) bool) func([]E) []E {
	return func(current []E) []E {
		out := make([]E, 0, len(current))
		for _, item := range current {
			if !match(item) {
				out = append(out, item)
			}
		}
		return out
	}
}

func UpdateWhere[E any](match func(E) bool, update func(E) E) func([]E) []E {
	return func(current []E) []E {
		if current == nil {
			return nil
		}
		out := make([]E, len(current))
		for i, item := range current {
			if match(item) {
				item = update(item)
			}
			out[i] = item
		}
		return out
	}
}

// ReplaceTemp swaps the placeholder named tempID for the confirmed record.
// When the placeholder is gone the record is appended, unless a record with
// the same id is already listed.
func ReplaceTemp[E Placeholder](tempID string, confirmed E) func([]E) []E {
	return func(current []E) []E {
		out := make([]E, 0, len(current)+1)
		found := false
		for _, item := range current {
			switch {
			case item.PlaceholderID() == tempID:
				item = confirmed
				found = true
			case item.PlaceholderID() == "" && item.RecordID() != 0 && item.RecordID() == confirmed.RecordID():
				found = true
			}
			out = append(out, item)
		}
		if !found {
			out = append(out, confirmed)
		}
		return out
	}
}
