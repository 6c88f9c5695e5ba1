package models

import "time"

// HistoryStatus is the status stored with a history record.
type HistoryStatus string

const (
	HistorySuccess    HistoryStatus = "success"
	HistoryFailed     HistoryStatus = "failed"
	HistoryProcessing HistoryStatus = "processing"
)

// HistoryRecord is one completed conversion as kept by the history store.
// Firestore field names match the documents written by the web client.
type HistoryRecord struct {
	ID               string        `json:"id" firestore:"-"`
	OwnerID          string        `json:"ownerId" firestore:"uid"`
	OriginalFileName string        `json:"originalFileName" firestore:"tenFileGoc"`
	Timestamp        time.Time     `json:"timestamp" firestore:"thoiGian"`
	Status           HistoryStatus `json:"status" firestore:"trangThai"`
	JobID            string        `json:"jobId" firestore:"jobId"`
	TemplateID       string        `json:"templateId,omitempty" firestore:"templateId,omitempty"`
}

// HistoryStats summarizes a set of history records.
type HistoryStats struct {
	Total      int
	Success    int
	Failed     int
	Processing int
}
