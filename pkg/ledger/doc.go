// Package ledger implements per-user budget accounting for cost-bearing
// decision tiers.
//
// Each user has one row holding current month spend, lifetime spend and
// tier-3 call counters. The Tracker checks a user's row before a paid call
// and commits the call's cost afterwards. All writes go through a single
// atomic Store.Upsert, optionally guarded, so concurrent requests for the
// same user cannot both pass the weekly tier-3 cap.
//
// Window counters are keyed by ISO week and calendar month (UTC). A row from
// an older window reads as zero even before the maintenance reset runs, so a
// late or repeated reset is harmless.
//
// Storage backends live in the storage subpackage.
package ledger
