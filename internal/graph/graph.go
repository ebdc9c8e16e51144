// Package graph serves a live view of the schema: tables as nodes and
// relationships as links, pushed to the browser over a WebSocket.
package graph

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/tliron/commonlog"
)

var logger = commonlog.GetLogger("dbml.graph")

// GraphData holds the nodes and links of the graph.
type GraphData struct {
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`
}

// Node is a table. ID is the canonical table name.
type Node struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Fields   []string `json:"fields"`
	Document string   `json:"document"`
}

// Link is a relationship between two tables.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label"`
}

// Message is sent over WebSocket to update clients. The whole graph is
// sent on connect and after every change.
type Message struct {
	Op    string     `json:"op"`
	Graph *GraphData `json:"graph,omitempty"`
}

//go:embed static/*
var staticFiles embed.FS

type document struct {
	nodes []Node
	links []Link
}

// Server keeps the graph of every document and serves it.
type Server struct {
	upgrader websocket.Upgrader

	graphMu sync.Mutex
	docs    map[string]document

	clientsMu sync.Mutex
	clients   map[*websocket.Conn]bool

	httpMu sync.Mutex
	http   *http.Server
	url    string
}

func NewServer() *Server {
	return &Server{
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		docs:     make(map[string]document),
		clients:  make(map[*websocket.Conn]bool),
	}
}

// Handler serves the page under /static/ and the socket under /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/static/", http.FileServer(http.FS(staticFiles)))
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// Start serves on addr (":0" picks a free port) unless already started, and
// returns the URL of the page.
func (s *Server) Start(addr string) (string, error) {
	s.httpMu.Lock()
	defer s.httpMu.Unlock()
	if s.http != nil {
		return s.url, nil
	}

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("could not start graph listener on %s: %w", addr, err)
	}

	s.http = &http.Server{Handler: s.Handler()}
	s.url = "http://" + l.Addr().String() + "/static/"
	go func(srv *http.Server) {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("graph server error: %v", err)
		}
	}(s.http)

	logger.Infof("graph served at %s", s.url)
	return s.url, nil
}

// Close stops the HTTP server and disconnects every client.
func (s *Server) Close() error {
	s.clientsMu.Lock()
	for conn := range s.clients {
		conn.Close()
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	s.httpMu.Lock()
	defer s.httpMu.Unlock()
	if s.http == nil {
		return nil
	}
	err := s.http.Shutdown(context.Background())
	s.http = nil
	return err
}

// SetDocument replaces the tables and relationships of uri and broadcasts
// the merged graph.
func (s *Server) SetDocument(uri string, nodes []Node, links []Link) error {
	for i := range nodes {
		nodes[i].Document = uri
	}
	s.graphMu.Lock()
	s.docs[uri] = document{nodes: nodes, links: links}
	s.graphMu.Unlock()
	return s.broadcast()
}

// RemoveDocument drops the tables and relationships of uri.
func (s *Server) RemoveDocument(uri string) error {
	s.graphMu.Lock()
	delete(s.docs, uri)
	s.graphMu.Unlock()
	return s.broadcast()
}

// Graph returns the merged graph of every document, sorted by ID. Links
// whose ends are not known tables are left out.
func (s *Server) Graph() GraphData {
	s.graphMu.Lock()
	defer s.graphMu.Unlock()

	g := GraphData{Nodes: []Node{}, Links: []Link{}}
	known := make(map[string]bool)
	for _, doc := range s.docs {
		for _, n := range doc.nodes {
			if !known[n.ID] {
				known[n.ID] = true
				g.Nodes = append(g.Nodes, n)
			}
		}
	}
	for _, doc := range s.docs {
		for _, l := range doc.links {
			if known[l.Source] && known[l.Target] {
				g.Links = append(g.Links, l)
			}
		}
	}

	slices.SortFunc(g.Nodes, func(a, b Node) int { return strings.Compare(a.ID, b.ID) })
	slices.SortFunc(g.Links, func(a, b Link) int {
		return strings.Compare(a.Source+"\x00"+a.Label, b.Source+"\x00"+b.Label)
	})
	return g
}

// Clients returns the number of connected sockets.
func (s *Server) Clients() int {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	return len(s.clients)
}

func (s *Server) initMessage() ([]byte, error) {
	state := s.Graph()
	return json.Marshal(Message{Op: "init", Graph: &state})
}

// broadcast sends the graph to all clients.
func (s *Server) broadcast() error {
	data, err := s.initMessage()
	if err != nil {
		return err
	}

	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for conn := range s.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logger.Warningf("broadcast error: %v", err)
			conn.Close()
			delete(s.clients, conn)
		}
	}
	return nil
}

// handleWS upgrades HTTP connections and sends the initial graph state.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warningf("websocket upgrade error: %v", err)
		return
	}

	data, err := s.initMessage()
	if err != nil {
		logger.Errorf("init marshal error: %v", err)
		conn.Close()
		return
	}

	s.clientsMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	if err == nil {
		s.clients[conn] = true
	}
	s.clientsMu.Unlock()
	if err != nil {
		conn.Close()
		return
	}

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, conn)
		s.clientsMu.Unlock()
		conn.Close()
	}()

	// keep connection open
	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}
}
