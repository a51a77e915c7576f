package message

import (
	"fmt"
	"net"
	"strconv"
)

// OutgoingRequest is a fully prepared downstream call: the endpoint picked
// from the host pool plus the encoded multipart body.
type OutgoingRequest struct {
	Service     string
	Method      string
	Addr        string
	Port        uint16
	Path        string
	ContentType string
	Body        []byte
}

// URL returns the request URL for the picked endpoint.
func (r *OutgoingRequest) URL() string {
	host := net.JoinHostPort(r.Addr, strconv.Itoa(int(r.Port)))
	path := r.Path
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("http://%s%s", host, path)
}
