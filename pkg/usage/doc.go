// Package usage records every cost-bearing escalation attempt.
//
// The Recorder is called after each tier-2 or tier-3 provider call, whether
// it succeeded or failed. It commits the call's cost to the budget ledger
// before returning, then appends a Record to Storage in the background. A
// failed append never rolls back the ledger commit.
//
// # Usage
//
//	rec := usage.NewRecorder(storage, tracker, usage.DefaultConfig(), collector)
//	defer rec.Close()
//
//	err := rec.Record(ctx, &usage.Record{
//	    UserID:    "user-1",
//	    Tier:      ledger.TierCheap,
//	    Model:     "claude-3-5-haiku-latest",
//	    TokensIn:  500,
//	    TokensOut: 50,
//	    CostUSD:   0.0001875,
//	    Success:   true,
//	}, false)
package usage
