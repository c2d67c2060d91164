// Package auth acquires outbound bearer tokens and authorizes inbound ones.
//
// Outbound, TokenClient runs the OAuth2 client_credentials grant once per
// call and BearerTransport stamps the resulting token onto every request of
// the client it wraps.
//
// Inbound, Engine turns an Authorization header into a Decision: the token is
// verified by a TokenVerifier (JWTVerifier backed by a static key or a
// JWKSKeyProvider) and must carry the required role under
// resource_access.<client-id>.roles. Guard applies a RoutePolicy and the
// Engine as HTTP middleware.
package auth
