package redis

import (
	"strings"
	"time"
)

// Key prefixes. Every key this service writes starts with one of them.
const (
	PrefixThesis   = "thesis:"
	PrefixEvents   = "events:"
	PrefixLock     = "lock:lineage:"
	PrefixReminder = "reminder:"
	PrefixPubSub   = "pubsub:"
)

// Fallback TTLs for constructors given a non-positive ttl.
const (
	TTLThesisView  = 5 * time.Minute
	TTLEvents      = time.Minute
	TTLLineageLock = 15 * time.Second
	TTLReminder    = 30 * 24 * time.Hour
)

// ThesisKey names a cached lineage view.
func ThesisKey(lineageID string) string {
	return PrefixThesis + lineageID
}

// EventsKey names a cached event list. The empty department is stored as "all".
func EventsKey(department string) string {
	if department == "" {
		department = "all"
	}
	return PrefixEvents + department
}

// LockKey names the writer lease of a lineage.
func LockKey(lineageID string) string {
	return PrefixLock + lineageID
}

// ReminderKey names a reminder marker, joining parts with ":".
func ReminderKey(parts ...string) string {
	return PrefixReminder + strings.Join(parts, ":")
}

// PubSubChannel names the channel of an event type. "*" yields the pattern
// for every type.
func PubSubChannel(eventType string) string {
	return PrefixPubSub + eventType
}
