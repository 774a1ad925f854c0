package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// InterviewPayloadKey holds the cached interview record, question set included.
func (r *CacheKeyStruct) InterviewPayloadKey(interviewID string) string {
	return fmt.Sprintf("interview:%s:payload", interviewID)
}

// InterviewLiveKey marks an interview whose live channel is open. The value
// is the owning connection id.
func (r *CacheKeyStruct) InterviewLiveKey(interviewID string) string {
	return fmt.Sprintf("interview:%s:live", interviewID)
}

// InterviewStateKey is a hash mirroring the live session and monitor state.
func (r *CacheKeyStruct) InterviewStateKey(interviewID string) string {
	return fmt.Sprintf("interview:%s:state", interviewID)
}

// InterviewMonitorChannel returns the Redis PubSub channel name for an interview monitor
func (r *CacheKeyStruct) InterviewMonitorChannel(interviewID string) string {
	return fmt.Sprintf("interview:%s:monitor", interviewID)
}

var CacheKey = NewCacheKeyStruct()
