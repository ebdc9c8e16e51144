package server

import (
	"fmt"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func (s *Server) workspaceExecuteCommand(
	context *glsp.Context,
	params *protocol.ExecuteCommandParams,
) (any, error) {
	switch params.Command {
	case ShowGraphCommand:
		return s.showGraph(context)
	}
	return nil, fmt.Errorf("unknown command %q", params.Command)
}

// showGraph starts the graph server if needed and asks the client to open
// it. The page URL is also the command result.
func (s *Server) showGraph(context *glsp.Context) (string, error) {
	url, err := s.graph.Start(s.cfg.GraphAddr)
	if err != nil {
		return "", err
	}
	logger.Infof("showing graph at %s", url)
	context.Notify(
		protocol.ServerWindowShowDocument,
		protocol.ShowDocumentParams{
			URI:      url,
			External: &protocol.True,
		},
	)
	return url, nil
}
