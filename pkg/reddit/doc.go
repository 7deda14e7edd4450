// Package reddit reads the live site for the live scraper: the hot listing
// through the OAuth API wrapper, and small comment samples from the public
// thread pages.
package reddit
