package backend

import (
	"context"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// registerIngestWS adds /ws/ingest/:metric, which accepts the same JSON
// body as POST /api/:metric once per text frame and answers each frame
// with the same response body plus its status code.
func (s *Server) registerIngestWS(app *fiber.App) {
	app.Get("/ws/ingest/:metric", websocket.New(s.handleIngestWS))
}

func (s *Server) handleIngestWS(c *websocket.Conn) {
	metric := strings.Clone(c.Params("metric"))
	logger := s.logger.With("metric", metric, "remote", c.RemoteAddr().String())
	logger.Info("ingest stream opened")
	defer logger.Info("ingest stream closed")

	ctx := context.Background()
	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		status, body := s.Ingest(ctx, metric, data)
		body["code"] = status
		if err := c.WriteJSON(body); err != nil {
			return
		}
	}
}
