// Package wsdemo is a minimal WebSocket transport that exercises a
// pubengine.Engine end to end: the connection decodes JSON-framed
// PublishRequests and feeds them to the engine, and the engine's
// PublishResponses/ServiceFaults are written back over the same
// connection. It exists to demonstrate wiring, not as a conformant OPC UA
// binary transport, and supports one live connection at a time.
package wsdemo

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/oparthasarathy/opcua-publishengine/pubengine"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server upgrades HTTP connections to WebSocket and binds each accepted
// connection to engine as its ResponseSender for the connection's lifetime.
type Server struct {
	engine *pubengine.Engine
}

// NewServer returns a Server that dispatches requests from its connection
// to engine.
func NewServer(engine *pubengine.Engine) *Server {
	return &Server{engine: engine}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("wsdemo: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sender := &connSender{conn: conn}
	s.engine.SetSender(sender)

	for {
		var req pubengine.PublishRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		s.engine.OnPublishRequest(&req)
	}
}

// connSender adapts one WebSocket connection to pubengine.ResponseSender.
// Gorilla's Conn forbids concurrent writers, so every send goes through
// writeMu, mirroring the per-connection write lock the hand-rolled
// WebSocket transport in the retrieved reference pack uses for the same
// reason.
type connSender struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (s *connSender) SendPublishResponse(resp *pubengine.PublishResponse) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(resp); err != nil {
		log.Printf("wsdemo: write publish response failed: %v", err)
	}
}

func (s *connSender) SendServiceFault(fault *pubengine.ServiceFault) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(fault); err != nil {
		log.Printf("wsdemo: write service fault failed: %v", err)
	}
}
