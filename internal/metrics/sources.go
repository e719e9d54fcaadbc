package metrics

import (
	"github.com/anodyne74/canedge/internal/canbus"
	"github.com/anodyne74/canedge/internal/pipeline"
	"github.com/anodyne74/canedge/internal/publish"
	"github.com/anodyne74/canedge/internal/spool"
)

// BufferSource adapts an ingest canbus.Buffer to a metrics Source.
type BufferSource struct {
	Buffer *canbus.Buffer
}

func (s BufferSource) Name() string { return "ingest_buffer" }

func (s BufferSource) Fields() map[string]interface{} {
	st := s.Buffer.Stats()
	return map[string]interface{}{
		"size":                  st.Size,
		"capacity":              st.Capacity,
		"enqueued":              st.Enqueued,
		"dropped":               st.Dropped,
		"utilization":           st.Utilization,
		"utilization_mean":      st.UtilizationWindow.Mean,
		"utilization_stddev":    st.UtilizationWindow.StdDev,
	}
}

// QueueSource adapts a pipeline.Queue to a metrics Source.
type QueueSource struct {
	Queue *pipeline.Queue
}

func (s QueueSource) Name() string { return "decoded_queue" }

func (s QueueSource) Fields() map[string]interface{} {
	st := s.Queue.Stats()
	return map[string]interface{}{
		"enqueued": st.Enqueued,
		"dequeued": st.Dequeued,
		"dropped":  st.Dropped,
		"depth":    st.Depth,
	}
}

// SpoolSource adapts a spool.Store to a metrics Source. If the stats
// query fails, Fields returns a single "error" field carrying the error
// text instead of the counters.
type SpoolSource struct {
	Store *spool.Store
}

func (s SpoolSource) Name() string { return "spool" }

func (s SpoolSource) Fields() map[string]interface{} {
	st, err := s.Store.Stats()
	if err != nil {
		return map[string]interface{}{"error": err.Error()}
	}
	return map[string]interface{}{
		"pending_batches": st.PendingBatches,
		"sent_batches":    st.SentBatches,
		"disk_bytes":      st.DiskBytes,
	}
}

// PublisherSource adapts a publish.Publisher to a metrics Source.
type PublisherSource struct {
	Publisher *publish.Publisher
}

func (s PublisherSource) Name() string { return "publisher" }

func (s PublisherSource) Fields() map[string]interface{} {
	st := s.Publisher.Stats()
	return map[string]interface{}{
		"batches_published":  st.BatchesPublished,
		"messages_published": st.MessagesPublished,
		"publish_failures":   st.PublishFailures,
	}
}
