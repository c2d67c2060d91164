// Package fhirclient builds FHIR REST clients that authenticate with both a
// client certificate and a bearer token.
package fhirclient
