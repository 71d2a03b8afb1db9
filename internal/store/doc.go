// Package store keeps events received by the development collector.
//
// The main components are:
//
//   - [Store]: interface for recording, listing and subscribing to events
//   - [MemoryStore]: bounded in-memory implementation with pub/sub
//   - [Sink]: durable destinations events are copied to
//   - [SQLiteSink]: writes events to a local SQLite database
//   - [KafkaSink]: publishes events to a Kafka topic
//
// Subscribers receive events on buffered channels with non-blocking sends;
// slow subscribers miss events rather than block ingestion.
package store
