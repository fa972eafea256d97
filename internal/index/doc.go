// Package index holds the package metadata records (identity, listing state,
// license, readme and icon presence, download counter). Memory keeps records in
// process; Postgres stores them in a single table whose schema is applied from
// embedded migrations at startup.
package index
