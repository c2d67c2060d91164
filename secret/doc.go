// Package secret resolves credentials referenced from configuration.
//
// Values may use strict environment expansion (${VAR}, see ExpandEnvStrict)
// and secret references of the form secretref:<provider>:<ref>:
//
//	password: secretref:file:/run/secrets/keystore-password
//	client_secret: secretref:env:FHIRGATE_CLIENT_SECRET
//
// EnvProvider and FileProvider ship with the package.
package secret
