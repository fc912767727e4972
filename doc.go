// Package prepaid provides a prepaid credit ledger and job settlement
// engine for Go applications.
//
// Prepaid is designed as a library, not a service. Import it directly into
// your Go application and wire it to your own analysis handlers. It
// provides:
//
//   - A per-user credit ledger with an append-only transaction log
//   - Atomic credit/debit primitives with no observable partial effect
//   - A reserve → confirm | refund saga for charging uncertain work
//   - A job orchestrator that holds credit, runs an analysis handler and
//     settles the hold based on the outcome
//   - A priced job type catalog with per-type result validation
//   - Pluggable lifecycle hooks for every ledger and job event
//
// # Quick Start
//
// Create an engine with your preferred store and handlers:
//
//	import (
//	    "github.com/xraph/prepaid"
//	    "github.com/xraph/prepaid/store/postgres"
//	)
//
//	// Initialize store over an existing grove database
//	store := postgres.New(db)
//
//	// Create engine with the handlers that serve the catalog
//	engine := prepaid.New(store,
//	    prepaid.WithHandler(sentimentHandler),
//	    prepaid.WithHandler(summaryHandler),
//	)
//
//	// Start the engine (migrates, validates handler coverage,
//	// begins background workers)
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop()
//
// # Core Concepts
//
// Job types define what analyses can be bought and at what price:
//
//	jt := &catalog.JobType{
//	    Key:            "sentiment",
//	    Name:           "Sentiment Analysis",
//	    Price:          prepaid.USD(500),
//	    RequiredFields: []string{"sentiment", "confidence"},
//	}
//	engine.CreateJobType(ctx, jt)
//
// Credits are purchased up front:
//
//	res, err := engine.Credit(ctx, userID, prepaid.USD(10000), "credit pack", orderID)
//
// Jobs hold their price for the duration of the analysis and settle by
// outcome — the balance only drops when the analysis actually delivers:
//
//	result, err := engine.SubmitJob(ctx, prepaid.JobRequest{
//	    UserID: userID,
//	    Type:   "sentiment",
//	    Input:  json.RawMessage(`{"text": "works great"}`),
//	})
//	if result.Success {
//	    // result.Result holds the analysis output; the charge settled.
//	} else {
//	    // result.RefundStatus says what happened to the held credit.
//	}
//
// # Settlement Model
//
// A reservation is a pending usage transaction plus a hold on the account;
// the balance itself is untouched until confirm. Failed jobs release the
// hold with no balance mutation at all. When a settlement step fails after
// the job's outcome is already fixed, the outcome stands and the job is
// flagged for reconciliation instead of being flipped.
//
// All monetary calculations use integer arithmetic to avoid floating-point
// precision issues. The Money type represents amounts in the smallest
// currency unit (cents for USD, pence for GBP, etc).
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	acct_01h2xcejqtf2nbrexx3vqjhp41   // Account ID
//	txn_01h2xcejqtf2nbrexx3vqjhp41    // Transaction ID
//	job_01h455vb4pex5vsknk084sn02q    // Job ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package prepaid
