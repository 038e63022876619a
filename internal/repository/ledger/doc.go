// Package ledger implements persistence of the per-component release Record.
//
// The ledger keeps exactly one current record per identity and overwrites it
// on every publish. DynamoRepository stores records in a DynamoDB table keyed
// by ID; FileRepository keeps one YAML file per identity for offline runs.
// Both satisfy the Repository interface the version ledger service depends on.
package ledger
