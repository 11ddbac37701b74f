// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types holds the shared data model and error taxonomy for the
search core: LotResult, SearchQuery, MorphologyAnalysis, CacheEntry,
SearchMetric, Subscription, and the SearchError/FailureKind error chain
used by upstream clients, the orchestrator, and the rate/quota gate.
*/
package types
