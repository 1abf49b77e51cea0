// Package api defines the deployable API model used by the mediation router.
//
// An API exposes one context path and an ordered list of resources. Its version
// strategy is a closed variant (NoVersion, ContextVersion or URLVersion) that decides
// whether a request carrying a version token is a candidate for the API. Requests are
// described by Request, which caches the full request path and the decoded query
// parameters for the lifetime of a single dispatch.
//
// Values in this package are immutable once deployed: the router shares them between
// goroutines without locking, so callers build a fresh API with New for every
// redeployment instead of mutating a deployed one.
package api
