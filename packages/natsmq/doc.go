// Package natsmq runs stages that publish a NATS message and verify the
// reply. A single connection per test is dialed from the nats_url
// setting and shared across stages.
package natsmq
