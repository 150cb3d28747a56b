// Package stream decodes change-data-capture batches into ir types.
//
// The wire shape is the DynamoDB Streams record as delivered to a stream
// consumer: eventID, eventName, eventSource and a dynamodb object carrying
// NewImage/OldImage attribute maps ({"S": "..."}, {"N": "..."}).
//
// Decoding keeps two views of every record: the raw JSON value (numbers kept
// as json.Number) used to derive the batch token, and the parsed ir.Event the
// engine classifies. Image parsing is tolerant: missing or malformed fields
// leave zero values behind and are judged by the engine, not here.
package stream
