package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/cheese-chess-web/internal/domain"
	"github.com/park285/cheese-chess-web/internal/game"
	"github.com/park285/cheese-chess-web/internal/render"
	"github.com/park285/cheese-chess-web/pkg/chessdto"
)

func (s *Server) handleThemes(w http.ResponseWriter, _ *http.Request) {
	themes := render.Themes()
	out := make([]chessdto.Theme, 0, len(themes))
	for _, t := range themes {
		out = append(out, chessdto.Theme{ID: t.ID, Name: t.Name, Light: render.Hex(t.Light), Dark: render.Hex(t.Dark)})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleBoard renders the current position. ?theme= picks the colours,
// ?size= the square size in pixels and ?square= overlays that square's legal
// targets.
func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	s.withGame(func(w http.ResponseWriter, r *http.Request, ctrl *game.Controller) {
		q := r.URL.Query()
		theme, ok := render.ThemeByID(q.Get("theme"))
		if !ok {
			theme = render.DefaultTheme()
		}
		size, _ := strconv.Atoi(q.Get("size"))

		st := ctrl.State()
		pos := ctrl.Position().Position()
		board := pos.Board()

		opts := render.Options{
			Theme:      theme,
			SquareSize: size,
			Check:      nchess.NoSquare,
		}
		if st.HumanSide == domain.SideBlack {
			opts.Orientation = nchess.Black
		} else {
			opts.Orientation = nchess.White
		}
		if from, to, ok := moveSquares(st.LastMove); ok {
			opts.LastMove = &render.MoveHighlight{From: from, To: to}
		}
		if st.InCheck {
			opts.Check = kingSquare(board, pos.Turn())
		}
		if sq := strings.TrimSpace(q.Get("square")); sq != "" {
			targets, err := ctrl.LegalTargets(sq)
			if err != nil {
				s.writeGameError(w, r, nil, err)
				return
			}
			for _, t := range targets {
				if parsed, ok := parseSquare(t); ok {
					opts.Targets = append(opts.Targets, parsed)
				}
			}
		}

		png, err := s.deps.Renderer.RenderPNG(r.Context(), board, opts)
		if err != nil {
			s.writeGameError(w, r, nil, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(png)
	})(w, r)
}

func parseSquare(s string) (nchess.Square, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return nchess.NoSquare, false
	}
	return nchess.NewSquare(nchess.File(s[0]-'a'), nchess.Rank(s[1]-'1')), true
}

func moveSquares(uci string) (nchess.Square, nchess.Square, bool) {
	if len(uci) < 4 {
		return nchess.NoSquare, nchess.NoSquare, false
	}
	from, ok1 := parseSquare(uci[:2])
	to, ok2 := parseSquare(uci[2:4])
	return from, to, ok1 && ok2
}

func kingSquare(board *nchess.Board, c nchess.Color) nchess.Square {
	for sq, p := range board.SquareMap() {
		if p.Type() == nchess.King && p.Color() == c {
			return sq
		}
	}
	return nchess.NoSquare
}
