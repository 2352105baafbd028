// Package events carries change notifications out of the settings engine.
//
// A Publisher receives one Event per committed change. Bus fans events out
// to in-process subscribers such as the push socket, NATSPublisher forwards
// them to a NATS subject, and MultiPublisher combines both.
package events
