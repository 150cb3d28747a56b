// Package dynamostore is a counter store backed by an Amazon DynamoDB table.
//
// One ir.Transaction becomes one TransactWriteItems call: an ADD update per
// workflow-run row, keyed by {"pk": run}, with the request token passed as
// ClientRequestToken. DynamoDB itself deduplicates a resubmitted token for
// ten minutes and rejects a reused token with different content
// (IdempotentParameterMismatchException, mapped to ir.ErrTokenConflict).
//
// A DynamoDB transaction holds at most MaxTransactItems rows. Larger
// transactions are rejected with ErrTransactionTooLarge instead of being
// split, since splitting would break all-or-nothing semantics.
package dynamostore
