// Package policy decides which request paths bypass token authorization.
//
// A Table is evaluated top to bottom and the first matching Entry wins.
// NewTable refuses entries that an earlier entry already covers, which keeps
// literals ahead of the wildcards that contain them.
package policy
