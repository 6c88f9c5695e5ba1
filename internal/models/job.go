// Package models defines the data structures shared by the conversion client.
package models

import "time"

// JobStatus is the state of a conversion job.
type JobStatus int

const (
	StatusIdle JobStatus = iota
	StatusUploading
	StatusProcessing
	StatusDone
	StatusFailed
)

func (s JobStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusUploading:
		return "uploading"
	case StatusProcessing:
		return "processing"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsActive reports whether a request is in flight.
func (s JobStatus) IsActive() bool {
	return s == StatusUploading || s == StatusProcessing
}

// FailureKind records why a job failed.
type FailureKind string

const (
	FailureNone      FailureKind = ""
	FailureTransport FailureKind = "transport"
	FailureService   FailureKind = "service"
	FailureTimeout   FailureKind = "timeout"
)

// Metrics are the counts and timings reported by the service.
// Missing fields stay zero.
type Metrics struct {
	PageCount      int
	FormulaCount   int
	ImageCount     int
	ElapsedSeconds float64
}

// ConversionJob is the state of one conversion request.
type ConversionJob struct {
	Status             JobStatus
	ProgressPercent    int
	JobID              string
	ResultText         string
	OutputArchiveName  string
	OutputDocumentName string
	Metrics            Metrics
	ErrorMessage       string
	FailureKind        FailureKind

	TemplateID string
	SourceName string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Elapsed returns the wall-clock duration of the job, or zero if it has not finished.
func (j ConversionJob) Elapsed() time.Duration {
	if j.StartedAt.IsZero() || j.FinishedAt.IsZero() {
		return 0
	}
	return j.FinishedAt.Sub(j.StartedAt)
}
