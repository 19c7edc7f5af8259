// Package orch orchestrates bulk submission of requests to a
// rate/concurrency-constrained remote API, OpenAI being the bundled
// target.
//
// Callers submit requests from any number of goroutines; the orchestrator
// enforces a global concurrency ceiling, applies per-attempt timeout and
// retry policies, and records every request's progress in a shared ledger
// so the result can be collected later by ID.
//
// Usage:
//
//	policies := orch.DefaultPolicies()
//	creds, err := keys.FromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	o, err := orch.New(policies, creds)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer o.Close(context.Background())
//
//	req := chat.NewSisoRequest(
//	    "You are a helpful assistant.",
//	    "What are you?",
//	    chat.DefaultModelParams(),
//	)
//	rid, err := o.Submit(ctx, req)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	resp, err := orch.GetResponse[chat.SisoResponse](ctx, o, rid)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(resp)
//
// Custom request types implement request.Request; the chat and embed
// packages are two bundled variants.
package orch
