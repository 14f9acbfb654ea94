package httpapi

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"elementx/internal/imaging"
	"elementx/internal/logging"
)

const (
	imagesWSWriteWait = 10 * time.Second
	imagesWSPongWait  = 60 * time.Second
	imagesWSPingEvery = (imagesWSPongWait * 9) / 10
)

var imagesWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type imagesWSInbound struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Key     string `json:"key,omitempty"`
	Prompt  string `json:"prompt,omitempty"`
	Formula string `json:"formula,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

type imagesWSOutbound struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Key     string `json:"key,omitempty"`
	Image   string `json:"image,omitempty"`
	Source  string `json:"source,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ImagesWS streams resolutions: each "resolve" message is answered by a
// "resolved" frame when it completes, in completion order.
func (h *Handler) ImagesWS(w http.ResponseWriter, r *http.Request) {
	conn, err := imagesWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	log := logging.From(r.Context(), h.log)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(imagesWSPongWait)); err != nil {
		log.Warn("images ws set read deadline failed", zap.Error(err))
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(imagesWSPongWait))
	})

	writeCh := make(chan imagesWSOutbound, 32)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(imagesWSPingEvery)
		defer ticker.Stop()
		writeImagesWS(ctx, cancel, conn, writeCh, ticker.C)
	}()

	var pending sync.WaitGroup
	defer func() {
		cancel()
		pending.Wait()
		<-writerDone
	}()

	for {
		var in imagesWSInbound
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		switch strings.ToLower(strings.TrimSpace(in.Type)) {
		case "ping":
			pushImagesWS(ctx, writeCh, imagesWSOutbound{Type: "pong", ID: in.ID})
		case "resolve":
			req := imaging.Request{
				Key:         strings.TrimSpace(in.Key),
				Prompt:      strings.TrimSpace(in.Prompt),
				FormulaHint: strings.TrimSpace(in.Formula),
				Kind:        imaging.ParseKind(in.Kind),
			}
			if req.Key == "" && req.Prompt == "" && req.FormulaHint == "" {
				pushImagesWS(ctx, writeCh, imagesWSOutbound{
					Type:    "error",
					ID:      in.ID,
					Code:    "invalid_argument",
					Message: "one of key, prompt or formula is required",
				})
				continue
			}
			pending.Add(1)
			go func(id string, req imaging.Request) {
				defer pending.Done()
				res := h.images.Resolve(ctx, req)
				pushImagesWS(ctx, writeCh, imagesWSOutbound{
					Type:   "resolved",
					ID:     id,
					Key:    req.Key,
					Image:  res.Image,
					Source: string(res.Source),
				})
			}(in.ID, req)
		case "":
			pushImagesWS(ctx, writeCh, imagesWSOutbound{
				Type:    "error",
				ID:      in.ID,
				Code:    "invalid_argument",
				Message: "type is required",
			})
		default:
			pushImagesWS(ctx, writeCh, imagesWSOutbound{
				Type:    "error",
				ID:      in.ID,
				Code:    "invalid_argument",
				Message: "unsupported type: " + in.Type,
			})
		}
	}
}

// imagesWSConn is the write side of *websocket.Conn.
type imagesWSConn interface {
	SetWriteDeadline(t time.Time) error
	WriteJSON(v any) error
	WriteMessage(messageType int, data []byte) error
}

// writeImagesWS is the single writer for a connection. Any write failure
// cancels ctx so pending resolutions stop waiting on writeCh.
func writeImagesWS(ctx context.Context, cancel context.CancelFunc, conn imagesWSConn, writeCh <-chan imagesWSOutbound, pings <-chan time.Time) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case out := <-writeCh:
			if err := conn.SetWriteDeadline(time.Now().Add(imagesWSWriteWait)); err != nil {
				return
			}
			if err := conn.WriteJSON(out); err != nil {
				return
			}
		case <-pings:
			if err := conn.SetWriteDeadline(time.Now().Add(imagesWSWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// pushImagesWS blocks until the writer takes out or the connection ends.
func pushImagesWS(ctx context.Context, writeCh chan<- imagesWSOutbound, out imagesWSOutbound) {
	select {
	case writeCh <- out:
	case <-ctx.Done():
	}
}
