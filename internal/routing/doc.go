// Package routing resolves inbound requests to one deployed API and one of its
// resources.
//
// API selection runs over a single snapshot of the API table in three passes:
//
//  1. Versioned APIs (context or URL versioning) whose strategy accepts the
//     request's version token and whose effective context matches the path.
//  2. Unversioned APIs, so that "match anything under this context" APIs never
//     shadow a version-aware sibling sharing the same prefix.
//  3. APIs mounted at the root context "/", the universal fallback, whatever
//     their strategy.
//
// Within each pass the table order applies: longer contexts first, then
// insertion order. The first API that matches is selected; its resources are
// then filtered by caller binding and by each resource's own filters, OPTIONS
// capable resources are moved to the front, and the engine's dispatcher chain
// picks one.
//
// The dispatcher chain is fixed when the engine is built. DefaultDispatchers
// returns URL-mapping, URI-template and catch-all dispatchers in that order:
//
//	table := apitable.New(logger)
//	engine, err := routing.NewEngine(table, routing.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//
//	res := engine.Resolve(api.FromHTTP(r))
//	switch res.Outcome {
//	case routing.OutcomeMatched:
//		// hand res to the mediation pipeline
//	case routing.OutcomeAPINotFound, routing.OutcomeResourceNotFound:
//		// 404, or 405 when res.MethodNotAllowed()
//	}
//
// Resolve never blocks and never returns an error: misses and malformed input
// are reported as outcomes.
package routing
