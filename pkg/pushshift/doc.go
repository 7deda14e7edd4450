// Package pushshift is a client for the pushshift Reddit archive: paged
// submission search, comment id lookup and chunked comment search.
package pushshift
