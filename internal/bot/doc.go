// Package bot answers inline assistant queries for the chat relay.
//
// A Querier performs exactly one request against the upstream text-generation
// API. The Orchestrator drives a Querier through a bounded number of attempts,
// waiting between failures according to Delay, and always yields a message
// that can be shown to users.
package bot
