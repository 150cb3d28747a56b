package ir

// EngineVersion is the retrievalstat release reported by the CLI.
// Batch tokens are versioned separately through DomainBatch.
const EngineVersion = "0.1.0"
