// Package mirror implements read-through mirroring from an upstream NuGet v3
// flat-container feed. Client talks to the feed over a shared, tuned HTTP
// transport and retries transient failures; Service decides when a package
// must be fetched, extracts the manifest, readme and icon from the .nupkg,
// stores every artifact and registers the record in the index.
package mirror
