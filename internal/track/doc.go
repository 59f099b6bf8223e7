// Package track holds the data model shared by the fusion engine and its
// collaborators: raw detections, frame-local observations, persistent
// per-track records, the serialized output form, and the pooled
// allocators that amortize churn across frames.
//
// Ownership rules:
//   - Detections are caller-owned input; the engine never mutates them
//     beyond the optional frame-timestamp override.
//   - Observations are pooled per frame. A matched observation is retained
//     by its track's pending cache until the next authoritative drain;
//     every other observation returns to the pool at frame end.
//   - TrackData is pooled per track lifetime and returns to the pool at
//     eviction. Its identifier is assigned once and never reused.
//
// This package must not import the matcher, tracker or engine packages.
package track
