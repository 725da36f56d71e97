// Package inference provides the client for the remote inference service
// that performs object detection and maturation analysis on field imagery.
//
// Upstream failures (transport errors, non-200 responses, malformed bodies)
// are converted at this boundary into a ProcessingResult with an error
// status instead of being returned as Go errors, so every inference attempt
// can be persisted and audited uniformly by the pipeline.
package inference
