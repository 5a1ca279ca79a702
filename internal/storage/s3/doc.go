// Package s3 provides a content-addressed blob backend on top of Amazon S3
// or any S3-compatible object store. It mirrors the local sharded key layout
// so a bucket and a cache directory list the same way.
package s3
