// Package crawler defines the shared vocabulary of the directory crawler: the
// region, cursor, record and checkpoint types, the tagged fetch outcome, the
// collaborator interfaces wired by the controller, and the retry and
// politeness helpers used by the fetcher.
package crawler
