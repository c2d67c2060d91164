// Package tlsctx builds the process transport context from loaded key and
// trust material.
//
// One Build call yields both the inbound (server) and outbound (client)
// tls.Config. Trust anchors come from the key store itself, a separate trust
// store, or nowhere at all, as selected by TrustPolicy. Inbound client
// certificates are governed by ClientAuthPolicy.
//
// The process-wide override that disables verification for every default
// HTTP client lives in the alwaystrust subpackage.
package tlsctx
