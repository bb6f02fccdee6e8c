// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The kocomstat Authors

package kocom

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Statistics tracks poll outcomes and anomaly counts
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalPolls        uint64
	SuccessfulPolls   uint64
	DegradedPolls     uint64
	ConnectionErrors  uint64
	Timeouts          uint64
	AuthRejections    uint64
	MalformedReplies  uint64
	MalformedFields   uint64
	OtherErrors       uint64
	Anomalies         uint64
	StaleDuplicates   uint64
	InvalidValues     uint64
	TimeoutsByStep    map[Step]uint64
	LastPollDuration  time.Duration
	TotalPollDuration time.Duration

	// Rates (calculated)
	PollRate  float64 // polls/hour
	ErrorRate float64 // failed polls/hour
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
		TimeoutsByStep: map[Step]uint64{},
	}
}

// Update records one poll: its snapshot or error, the anomalies raised for it
// and how long it took.
func (s *Statistics) Update(snap *Snapshot, pollErr error, anomalies []Anomaly, took time.Duration) {
	s.TotalPolls++
	s.LastPollDuration = took
	s.TotalPollDuration += took
	s.LastUpdateTime = time.Now()

	if pollErr != nil {
		var ce *ClientError
		if !errors.As(pollErr, &ce) {
			s.OtherErrors++
			return
		}
		switch ce.Kind {
		case KindConnectionFailed:
			s.ConnectionErrors++
		case KindTimeout:
			s.Timeouts++
			if s.TimeoutsByStep == nil {
				s.TimeoutsByStep = map[Step]uint64{}
			}
			s.TimeoutsByStep[ce.Step]++
		case KindAuthRejected:
			s.AuthRejections++
		case KindMalformedResponse:
			s.MalformedReplies++
		case KindMalformedField:
			s.MalformedFields++
		default:
			s.OtherErrors++
		}
		return
	}

	s.SuccessfulPolls++
	if snap != nil && snap.Degraded() {
		s.DegradedPolls++
	}
	for _, a := range anomalies {
		s.Anomalies++
		switch a.Type {
		case AnomalyStaleDuplicate:
			s.StaleDuplicates++
		case AnomalyInvalidValue:
			s.InvalidValues++
		}
	}
}

// FailedPolls returns the number of polls that ended in an error.
func (s *Statistics) FailedPolls() uint64 {
	return s.TotalPolls - s.SuccessfulPolls
}

// CalculateRates calculates poll and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Hours()
	if elapsed > 0 {
		s.PollRate = float64(s.TotalPolls) / elapsed
		s.ErrorRate = float64(s.FailedPolls()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var successPercent, failedPercent float64
	if s.TotalPolls > 0 {
		successPercent = float64(s.SuccessfulPolls) * 100.0 / float64(s.TotalPolls)
		failedPercent = float64(s.FailedPolls()) * 100.0 / float64(s.TotalPolls)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%s) ===\n", elapsed.Truncate(time.Second))
	result += fmt.Sprintf("Total Polls:     %8d\n", s.TotalPolls)
	result += fmt.Sprintf("Successful:      %8d (%.1f%%)\n", s.SuccessfulPolls, successPercent)
	if s.DegradedPolls > 0 {
		result += fmt.Sprintf("  Degraded:         %5d\n", s.DegradedPolls)
	}
	if s.FailedPolls() > 0 {
		result += fmt.Sprintf("Failed:          %8d (%.1f%%)\n", s.FailedPolls(), failedPercent)
		if s.ConnectionErrors > 0 {
			result += fmt.Sprintf("  Connection:       %5d\n", s.ConnectionErrors)
		}
		if s.Timeouts > 0 {
			result += fmt.Sprintf("  Timeouts:         %5d\n", s.Timeouts)
			for _, step := range []Step{StepConnect, StepAuth, StepMenu, StepAddress, StepEnergy} {
				if n := s.TimeoutsByStep[step]; n > 0 {
					result += fmt.Sprintf("    %-8s        %5d\n", step, n)
				}
			}
		}
		if s.AuthRejections > 0 {
			result += fmt.Sprintf("  Auth Rejected:    %5d\n", s.AuthRejections)
		}
		if s.MalformedReplies > 0 {
			result += fmt.Sprintf("  Malformed Reply:  %5d\n", s.MalformedReplies)
		}
		if s.MalformedFields > 0 {
			result += fmt.Sprintf("  Malformed Field:  %5d\n", s.MalformedFields)
		}
		if s.OtherErrors > 0 {
			result += fmt.Sprintf("  Other:            %5d\n", s.OtherErrors)
		}
	}
	if s.Anomalies > 0 {
		result += fmt.Sprintf("Anomalies:       %8d\n", s.Anomalies)
		if s.StaleDuplicates > 0 {
			result += fmt.Sprintf("  Stale Duplicate:  %5d\n", s.StaleDuplicates)
		}
		if s.InvalidValues > 0 {
			result += fmt.Sprintf("  Invalid Value:    %5d\n", s.InvalidValues)
		}
	}
	if s.TotalPolls > 0 {
		avg := s.TotalPollDuration / time.Duration(s.TotalPolls)
		result += fmt.Sprintf("Avg Poll Time:   %8s\n", avg.Truncate(time.Millisecond))
	}
	result += fmt.Sprintf("Poll Rate:       %8.1f polls/hour\n", s.PollRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/hour\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
