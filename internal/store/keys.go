package store

import "fmt"

// Key-name templates. Every name in the keyspace is built here and nowhere
// else.
const auditStreamKey = "audit:keylookup"

func projectKey(projectID string) string {
	return fmt.Sprintf("project:%s", projectID)
}

func apiKeyKey(projectID, keyID string) string {
	return fmt.Sprintf("apikey:%s:%s", projectID, keyID)
}

func projectIndexKey(projectID string) string {
	return fmt.Sprintf("apiprojectkeys:%s", projectID)
}

func usageKey(projectID, keyID string) string {
	return fmt.Sprintf("apimeta:%s:%s", projectID, keyID)
}

func rateKey(projectID, keyID string, minute int64) string {
	return fmt.Sprintf("ratelimit:key:%s:%s:%d", projectID, keyID, minute)
}
