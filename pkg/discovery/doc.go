// Package discovery implements mDNS advertisement and browsing so
// clients on the local network can locate servers without static URLs.
//
// Servers register a "_wsbase._tcp" service whose TXT records carry the
// protocol version and whether the endpoint expects TLS. Browsers
// aggregate answers from multiple interfaces into a single entry per
// instance name.
package discovery
