// Package executor runs validated GraphQL operations, asking a Runtime for
// every field value.
//
// Subscriptions are the primary shape: Subscribe opens the source event
// stream of the single root field and executes the selection set once per
// event, lazily, in source order. A query is the same execution run once with
// a nil root value.
//
// Sibling fields resolve concurrently; WithParallelism bounds the resolver
// calls in flight. A resolver error or a null in a Non-Null position is
// recorded as a located error and nulls the nearest nullable ancestor, so a
// result can carry partial data.
//
// Only object, scalar and enum output types are executed. Fragment type
// conditions match the object type name.
package executor
