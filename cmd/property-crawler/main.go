// Package main provides the property-crawler CLI.
//
// Usage:
//
//	property-crawler crawl [seed-url]
//	property-crawler relay
//
// See --help for all available options.
package main

func main() {
	Execute()
}
