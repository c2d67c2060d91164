// Package truststore loads key stores and trust stores.
//
// A store is addressed by a locator: a plain filesystem path, "file:<path>",
// or "classpath:<name>" resolved against the Loader's packaged resources.
// PKCS12, JKS and PEM encodings are supported. Load failures match
// ErrMaterialNotFound or ErrMaterialCorrupt and are fatal at startup.
//
// Materialize copies a packaged resource to a temporary file for consumers
// that only accept paths; RunCleanup deletes such files at process exit.
package truststore
