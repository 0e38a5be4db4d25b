package proxy

import (
	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/eventstream"
	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/utils"
	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/proxy/stream"
	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/proxy/worker"
)

// sessionClosed returns the OnClose hook of a stream session: it records the
// session metrics and enqueues the session event. It never blocks.
func (p *Proxy) sessionClosed(path string) func(stream.Summary) {
	return func(sum stream.Summary) {
		p.metrics.SessionClosed(string(sum.Outcome), sum.Records, sum.Malformed, sum.Duration)

		if p.workerPool == nil {
			return
		}
		p.workerPool.Enqueue(worker.Job{Event: p.newSessionEvent(path, sum)})
	}
}

func (p *Proxy) newSessionEvent(path string, sum stream.Summary) *eventstream.SessionClosedEvent {
	event := eventstream.NewSessionClosedEvent()
	event.Source = eventstream.EventSource{
		Service:  eventstream.SourceName,
		Version:  utils.Version,
		Upstream: p.upstream.URL(),
	}
	event.Session = eventstream.SessionMeta{
		ID:        sum.ID,
		Model:     sum.Model,
		Outcome:   string(sum.Outcome),
		Records:   sum.Records,
		Malformed: sum.Malformed,
	}
	if sum.Err != nil {
		event.Session.Error = sum.Err.Error()
	}
	event.Request = eventstream.RequestMeta{
		Path:        path,
		StartedAt:   sum.StartedAt.UTC(),
		CompletedAt: sum.StartedAt.Add(sum.Duration).UTC(),
		DurationMs:  sum.Duration.Milliseconds(),
	}
	return event
}
