// Package id provides the monotonic sequence used to number chat events.
//
// A Sequence hands out strictly increasing uint64 values and is safe for
// concurrent use. Stores that persist their high-water mark call Restore
// after reopening so numbering resumes above every value already issued.
//
//	var seq id.Sequence
//	seq.Restore(lastPersisted)
//	next := seq.Next()
package id
