// Package storage persists package artifacts (.nupkg, .nuspec, readme, icon)
// behind a small key/value Store. Two backends exist: a filesystem store that
// writes through temp file + rename under a lock keyed by the normalized key, and an Azure Blob
// store. PackageStorage maps package identities onto the on-disk layout
//
//	packages/<id>/<version>/<id>.<version>.nupkg
//	packages/<id>/<version>/<id>.nuspec
//	packages/<id>/<version>/readme
//	packages/<id>/<version>/icon
//
// with id and version lower-cased, and serves the streams the content layer
// asks for.
package storage
