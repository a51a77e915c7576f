package orchestrator

import (
	"github.com/aescanero/routerd/pkg/message"
)

// prepareOutgoingLocked builds the request sent to one ready service: the
// client's method, the service path (or the client path when unset), an
// endpoint picked round-robin from the service's host group, and a
// multipart body of the client parts plus every reply accumulated so far.
// Dependency outputs reach dependents through this body.
func (o *Orchestrator) prepareOutgoingLocked(st *RequestState, name string) *message.OutgoingRequest {
	svc := st.Graph.Services[name]
	host := o.hosts.Pick(svc.HostsFrom)

	path := svc.Path
	if path == "" {
		path = st.Path
	}

	parts := make([]message.Part, 0, len(st.clientParts)+len(st.responseParts))
	parts = append(parts, st.clientParts...)
	parts = append(parts, st.responseParts...)
	contentType, body := message.Encode(parts)

	return &message.OutgoingRequest{
		Service:     name,
		Method:      st.Method,
		Addr:        host.Addr,
		Port:        host.Port,
		Path:        path,
		ContentType: contentType,
		Body:        body,
	}
}
