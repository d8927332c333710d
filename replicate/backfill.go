// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replicate

import (
	"errors"

	"github.com/bureau-foundation/termsync/history"
	"github.com/bureau-foundation/termsync/protocol"
	"github.com/bureau-foundation/termsync/terminal"
)

type backfillJob struct {
	id   uint64
	next terminal.RowID
	end  terminal.RowID
}

// backfillQueue holds outstanding requests in round-robin order plus
// replies that need no store read.
type backfillQueue struct {
	jobs    []*backfillJob
	replies []protocol.HistoryBackfill

	seen   map[uint64]struct{}
	order  []uint64
	memory int
}

func newBackfillQueue(memory int) backfillQueue {
	return backfillQueue{seen: make(map[uint64]struct{}), memory: memory}
}

func (q *backfillQueue) len() int { return len(q.jobs) + len(q.replies) }

// remember records id and reports whether it was new. The oldest id
// is forgotten once memory is exceeded.
func (q *backfillQueue) remember(id uint64) bool {
	if _, ok := q.seen[id]; ok {
		return false
	}
	q.seen[id] = struct{}{}
	q.order = append(q.order, id)
	if len(q.order) > q.memory {
		delete(q.seen, q.order[0])
		q.order = q.order[1:]
	}
	return true
}

// RequestBackfill queues a viewer request. A request id seen recently
// is ignored. A request starting at or beyond the tail, or arriving
// when MaxQueuedRequests are outstanding, is answered TransientEmpty
// on the next Tick.
func (s *Subscriber) RequestBackfill(request protocol.RequestBackfill) {
	if !s.backfill.remember(request.RequestID) {
		s.config.Metrics.BackfillRequest("duplicate")
		s.logger.Debug("duplicate backfill request ignored", "request_id", request.RequestID)
		return
	}

	maxRows := request.MaxRows
	if maxRows <= 0 {
		maxRows = s.config.BackfillChunkRows
	}
	maxRows = min(maxRows, s.config.MaxBackfillRows)

	bounds := s.source.Bounds()
	transient := protocol.HistoryBackfill{
		RequestID:    request.RequestID,
		StartRow:     request.StartRow,
		Count:        maxRows,
		Availability: protocol.TransientEmpty,
		AsOf:         bounds.Head,
	}
	switch {
	case request.StartRow >= bounds.Tail:
		s.config.Metrics.BackfillRequest("out_of_range")
		s.logger.Debug("backfill request beyond tail",
			"request_id", request.RequestID,
			"start_row", request.StartRow,
			"tail", bounds.Tail,
		)
		s.backfill.replies = append(s.backfill.replies, transient)
	case len(s.backfill.jobs) >= s.config.MaxQueuedRequests:
		s.config.Metrics.BackfillRequest("rejected")
		s.logger.Warn("backfill queue full",
			"request_id", request.RequestID,
			"queued", len(s.backfill.jobs),
		)
		s.backfill.replies = append(s.backfill.replies, transient)
	default:
		s.config.Metrics.BackfillRequest("accepted")
		s.backfill.jobs = append(s.backfill.jobs, &backfillJob{
			id:   request.RequestID,
			next: request.StartRow,
			end:  min(request.StartRow+terminal.RowID(maxRows), bounds.Tail),
		})
	}
}

func (s *Subscriber) backfillLane(frames []protocol.Frame) []protocol.Frame {
	for _, reply := range s.backfill.replies {
		s.config.Metrics.BackfillChunk(reply.Availability.String())
		frames = append(frames, reply)
	}
	s.backfill.replies = nil

	if len(s.backfill.jobs) == 0 {
		return frames
	}
	job := s.backfill.jobs[0]
	s.backfill.jobs = s.backfill.jobs[1:]

	chunk := s.serve(job)
	if chunk.More {
		s.backfill.jobs = append(s.backfill.jobs, job)
	}
	if chunk.Availability == protocol.PermanentlyUnavailable {
		s.cursor.KnownBase = max(s.cursor.KnownBase, chunk.End())
	}
	if chunk.Availability == protocol.Delivered {
		s.cursor.Delivered = max(s.cursor.Delivered, chunk.End())
	}
	s.config.Metrics.BackfillChunk(chunk.Availability.String())
	return append(frames, chunk)
}

// serve produces the next chunk of job and advances it.
func (s *Subscriber) serve(job *backfillJob) protocol.HistoryBackfill {
	chunk := protocol.HistoryBackfill{RequestID: job.id, StartRow: job.next}
	bounds := s.source.Bounds()
	chunk.AsOf = bounds.Head

	if job.next >= bounds.Floor {
		rows, err := s.source.ReadRows(job.next, min(s.config.BackfillChunkRows, int(job.end-job.next)))
		switch {
		case err == nil && len(rows.Rows) > 0:
			job.next += terminal.RowID(len(rows.Rows))
			chunk.Rows = rows.Rows
			chunk.Count = len(rows.Rows)
			chunk.AsOf = rows.AsOf
			chunk.Availability = protocol.Delivered
			chunk.More = job.next < job.end
			return chunk
		case errors.Is(err, history.ErrNotAvailable):
			// Evicted since Bounds was read.
			bounds = s.source.Bounds()
		default:
			if err != nil {
				s.logger.Warn("reading backfill rows",
					"request_id", job.id,
					"start_row", job.next,
					"error", err,
				)
			}
			chunk.Count = int(job.end - job.next)
			chunk.Availability = protocol.TransientEmpty
			job.next = job.end
			return chunk
		}
	}

	end := min(job.end, bounds.Floor)
	if end <= job.next {
		// Below no floor yet unreadable: nothing covers the row.
		chunk.Count = int(job.end - job.next)
		chunk.Availability = protocol.TransientEmpty
		job.next = job.end
		return chunk
	}
	chunk.Count = int(end - job.next)
	chunk.Availability = protocol.PermanentlyUnavailable
	job.next = end
	chunk.More = job.next < job.end
	return chunk
}
