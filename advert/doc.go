// Package advert is a thin XML-RPC client for a DHT advertisement
// service: Announce publishes a (key, value) pair with a lifetime,
// Lookup retrieves previously announced values.
//
// It carries no concurrency or resource management of its own; the only
// policy is trying the configured servers in order until one answers.
package advert
