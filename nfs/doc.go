// Package nfs defines the directory structures layered on top of structured
// data: a DirectoryListing names its files and sub-directories and is stored
// CBOR encoded under TagDirectoryListing.
package nfs
