// Package vaas is a client SDK for the Verdict-as-a-Service malware
// scanning platform. It multiplexes many outstanding verdict requests over
// an authenticated transport (HTTP or a persistent frame channel), handles
// the upload-on-unknown protocol, and caches OAuth2 bearer tokens.
package vaas
