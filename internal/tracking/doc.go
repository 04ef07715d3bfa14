// Package tracking is the multi-target tracking engine.
//
// Responsibilities: per-subject constant-velocity Kalman estimation,
// frame-to-frame association (greedy nearest-neighbour by default,
// Hungarian on request), and the track lifecycle (birth on an unmatched
// detection, survival through short occlusion, removal after
// MaxMissedFrames consecutive misses).
// Key types: Tracker, Track, Estimator, Detection, TrackView.
//
// Dependency rule: no I/O. Detections arrive already validated from
// internal/ingest; persistence and transport live in internal/db and
// internal/api.
package tracking
