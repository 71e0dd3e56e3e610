package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-chess-web/internal/leaderboard"
	"github.com/park285/cheese-chess-web/pkg/chessdto"
)

func TestEventsStream(t *testing.T) {
	Convey("Given a game with a connected event stream", t, func() {
		f := newFixture(t, leaderboard.NewMemoryRepository(), "c7c5")
		ts := httptest.NewServer(f.handler)
		defer ts.Close()

		id := decode[chessdto.GameState](f.do(http.MethodPost, "/api/games", chessdto.CreateGameRequest{Difficulty: "easy"})).ID

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/api/games/"+id+"/events", nil)
		So(err, ShouldBeNil)
		defer conn.Close(websocket.StatusNormalClosure, "")

		var first chessdto.GameEvent
		So(wsjson.Read(ctx, conn, &first), ShouldBeNil)
		So(first.Type, ShouldEqual, "state")
		So(first.State.ID, ShouldEqual, id)

		Convey("When the human moves the engine reply is pushed", func() {
			body, _ := json.Marshal(chessdto.MoveRequest{From: "e2", To: "e4"})
			resp, err := http.Post(ts.URL+"/api/games/"+id+"/moves", "application/json", bytes.NewReader(body))
			So(err, ShouldBeNil)
			resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			var engineMove string
			for engineMove == "" {
				var ev chessdto.GameEvent
				if err := wsjson.Read(ctx, conn, &ev); err != nil {
					break
				}
				if ev.Type == "engine_move" {
					engineMove = ev.Move
				}
			}
			So(engineMove, ShouldEqual, "c7c5")
		})
	})

	Convey("Given an unknown game", t, func() {
		f := newFixture(t, nil)
		rec := f.do(http.MethodGet, "/api/games/missing/events", nil)
		So(rec.Code, ShouldEqual, http.StatusNotFound)
	})
}
