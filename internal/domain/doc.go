// Package domain contains the core entities of the processing pipeline and
// the station monitoring subsystem: images submitted for analysis, the
// detection and maturation results produced for them, the combined result
// persisted per image, pipeline run status records, and the monitoring
// sessions and captures tied to field stations.
//
// Entities are created through constructors that validate their input and
// are serialized to the store as JSON documents.
package domain
