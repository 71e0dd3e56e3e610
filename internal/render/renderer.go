package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"math"

	nchess "github.com/corentings/chess/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	defaultSquareSize = 64
	minSquareSize     = 24
	maxSquareSize     = 128
	coordMargin       = 20
)

type MoveHighlight struct {
	From nchess.Square
	To   nchess.Square
}

type Options struct {
	Theme Theme
	// Orientation is the colour drawn at the bottom.
	Orientation nchess.Color
	LastMove    *MoveHighlight
	// Targets are drawn as dots, the way legal destinations are offered.
	Targets []nchess.Square
	// Check marks the king in check; NoSquare for none.
	Check      nchess.Square
	SquareSize int
}

var (
	lastMoveFill    = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	targetDotColor  = color.NRGBA{R: 0, G: 0, B: 0, A: 60}
	checkFill       = color.NRGBA{R: 230, G: 40, B: 40, A: 150}
	engineArrow     = color.NRGBA{R: 148, G: 207, B: 255, A: 170}
	backgroundColor = color.RGBA{R: 38, G: 36, B: 33, A: 255}
	coordinateColor = color.NRGBA{R: 220, G: 220, B: 220, A: 255}
)

type Renderer struct{}

func NewRenderer() *Renderer { return &Renderer{} }

func (r *Renderer) RenderPNG(ctx context.Context, board *nchess.Board, opts Options) ([]byte, error) {
	if board == nil {
		return nil, fmt.Errorf("board is nil")
	}
	size := opts.SquareSize
	if size <= 0 {
		size = defaultSquareSize
	}
	if size < minSquareSize {
		size = minSquareSize
	}
	if size > maxSquareSize {
		size = maxSquareSize
	}
	if opts.Theme.ID == "" {
		opts.Theme = DefaultTheme()
	}
	flip := opts.Orientation == nchess.Black

	boardSize := size * 8
	img := image.NewRGBA(image.Rect(0, 0, boardSize+coordMargin, boardSize+coordMargin))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)
	origin := image.Point{X: coordMargin, Y: 0}
	geo := geometry{size: size, origin: origin, flip: flip}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	drawSquares(img, geo, opts.Theme)
	if opts.LastMove != nil {
		drawSquareOverlay(img, geo.rect(opts.LastMove.From), lastMoveFill)
		drawSquareOverlay(img, geo.rect(opts.LastMove.To), lastMoveFill)
	}
	if opts.Check != nchess.NoSquare {
		drawSquareOverlay(img, geo.rect(opts.Check), checkFill)
	}
	if err := drawPieces(img, board, geo); err != nil {
		return nil, err
	}
	if opts.LastMove != nil && moverIsBlack(board, opts.LastMove) {
		drawArrow(img, geo, opts.LastMove.From, opts.LastMove.To, engineArrow)
	}
	for _, sq := range opts.Targets {
		rect := geo.rect(sq)
		center := image.Pt(rect.Min.X+size/2, rect.Min.Y+size/2)
		drawDisc(img, center, size/7, targetDotColor)
	}
	drawCoordinates(img, geo)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

type geometry struct {
	size   int
	origin image.Point
	flip   bool
}

func (g geometry) rect(sq nchess.Square) image.Rectangle {
	col := int(sq.File())
	row := 7 - int(sq.Rank())
	if g.flip {
		col = 7 - col
		row = 7 - row
	}
	x := g.origin.X + col*g.size
	y := g.origin.Y + row*g.size
	return image.Rect(x, y, x+g.size, y+g.size)
}

func allSquares() []nchess.Square {
	out := make([]nchess.Square, 0, 64)
	for r := nchess.Rank1; r <= nchess.Rank8; r++ {
		for f := nchess.FileA; f <= nchess.FileH; f++ {
			out = append(out, nchess.NewSquare(f, r))
		}
	}
	return out
}

func drawSquares(dst *image.RGBA, geo geometry, theme Theme) {
	for _, sq := range allSquares() {
		clr := theme.Light
		if (int(sq.File())+int(sq.Rank()))%2 == 0 {
			clr = theme.Dark
		}
		imagedraw.Draw(dst, geo.rect(sq), image.NewUniform(clr), image.Point{}, imagedraw.Src)
	}
}

func drawPieces(dst *image.RGBA, board *nchess.Board, geo geometry) error {
	for sq, piece := range board.SquareMap() {
		if piece == nchess.NoPiece {
			continue
		}
		img, err := renderPieceImage(piece, geo.size)
		if err != nil {
			return err
		}
		imagedraw.Draw(dst, geo.rect(sq), img, image.Point{}, imagedraw.Over)
	}
	return nil
}

func moverIsBlack(board *nchess.Board, mv *MoveHighlight) bool {
	if piece := board.Piece(mv.To); piece != nchess.NoPiece {
		return piece.Color() == nchess.Black
	}
	return false
}

func drawCoordinates(dst *image.RGBA, geo geometry) {
	face := basicfont.Face7x13
	drawer := &font.Drawer{Dst: dst, Face: face, Src: image.NewUniform(coordinateColor)}
	ascent := face.Metrics().Ascent.Ceil()

	for i := 0; i < 8; i++ {
		rankSq := nchess.NewSquare(nchess.FileA, nchess.Rank(i))
		rr := geo.rect(rankSq)
		drawCenteredText(drawer, nchess.Rank(i).String(), coordMargin/2, rr.Min.Y+geo.size/2+ascent/2)

		fileSq := nchess.NewSquare(nchess.File(i), nchess.Rank1)
		fr := geo.rect(fileSq)
		drawCenteredText(drawer, nchess.File(i).String(), fr.Min.X+geo.size/2, geo.origin.Y+8*geo.size+ascent+2)
	}
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	if text == "" {
		return
	}
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}

func drawSquareOverlay(img *image.RGBA, rect image.Rectangle, clr color.Color) {
	imagedraw.Draw(img, rect, image.NewUniform(clr), image.Point{}, imagedraw.Over)
}

type pointF struct {
	X float64
	Y float64
}

func drawArrow(img *image.RGBA, geo geometry, from, to nchess.Square, clr color.Color) {
	if from == to {
		return
	}
	startRect := geo.rect(from)
	endRect := geo.rect(to)
	half := float64(geo.size) / 2
	sx, sy := float64(startRect.Min.X)+half, float64(startRect.Min.Y)+half
	ex, ey := float64(endRect.Min.X)+half, float64(endRect.Min.Y)+half

	dx, dy := ex-sx, ey-sy
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	dirX, dirY := dx/length, dy/length
	perpX, perpY := -dirY, dirX

	sq := float64(geo.size)
	baseLength := length - sq*0.45
	if baseLength < sq*0.35 {
		baseLength = length * 0.6
	}
	halfWidth := sq * 0.12
	headWidth := sq * 0.32
	baseX, baseY := sx+dirX*baseLength, sy+dirY*baseLength

	fillQuad(img,
		pointF{sx - perpX*halfWidth, sy - perpY*halfWidth},
		pointF{sx + perpX*halfWidth, sy + perpY*halfWidth},
		pointF{baseX + perpX*halfWidth, baseY + perpY*halfWidth},
		pointF{baseX - perpX*halfWidth, baseY - perpY*halfWidth},
		clr,
	)
	fillTriangleF(img,
		pointF{ex, ey},
		pointF{baseX - perpX*headWidth/2, baseY - perpY*headWidth/2},
		pointF{baseX + perpX*headWidth/2, baseY + perpY*headWidth/2},
		clr,
	)
}

func drawDisc(img *image.RGBA, center image.Point, radius int, clr color.Color) {
	if radius <= 0 {
		blendPixel(img, center.X, center.Y, clr)
		return
	}
	rSquared := radius * radius
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			if x*x+y*y <= rSquared {
				blendPixel(img, center.X+x, center.Y+y, clr)
			}
		}
	}
}

// blendPixel composites clr over the pixel at (x, y) with source-over.
func blendPixel(img *image.RGBA, x, y int, clr color.Color) {
	if !(image.Point{X: x, Y: y}).In(img.Bounds()) {
		return
	}
	sr, sg, sb, sa := clr.RGBA()
	if sa == 0 {
		return
	}
	dst := img.RGBAAt(x, y)
	inv := 65535 - sa
	img.SetRGBA(x, y, color.RGBA{
		R: uint8((sr + uint32(dst.R)*257*inv/65535) >> 8),
		G: uint8((sg + uint32(dst.G)*257*inv/65535) >> 8),
		B: uint8((sb + uint32(dst.B)*257*inv/65535) >> 8),
		A: uint8((sa + uint32(dst.A)*257*inv/65535) >> 8),
	})
}

func fillQuad(img *image.RGBA, p0, p1, p2, p3 pointF, clr color.Color) {
	fillTriangleF(img, p0, p1, p2, clr)
	fillTriangleF(img, p0, p2, p3, clr)
}

func fillTriangleF(img *image.RGBA, a, b, c pointF, clr color.Color) {
	minX := int(math.Floor(math.Min(a.X, math.Min(b.X, c.X))))
	maxX := int(math.Ceil(math.Max(a.X, math.Max(b.X, c.X))))
	minY := int(math.Floor(math.Min(a.Y, math.Min(b.Y, c.Y))))
	maxY := int(math.Ceil(math.Max(a.Y, math.Max(b.Y, c.Y))))

	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			if pointInTriangle(float64(x)+0.5, float64(y)+0.5, a, b, c) {
				blendPixel(img, x, y, clr)
			}
		}
	}
}

func pointInTriangle(x, y float64, a, b, c pointF) bool {
	denom := (b.Y-c.Y)*(a.X-c.X) + (c.X-b.X)*(a.Y-c.Y)
	if denom == 0 {
		return false
	}
	alpha := ((b.Y-c.Y)*(x-c.X) + (c.X-b.X)*(y-c.Y)) / denom
	beta := ((c.Y-a.Y)*(x-c.X) + (a.X-c.X)*(y-c.Y)) / denom
	gamma := 1 - alpha - beta
	return alpha >= 0 && beta >= 0 && gamma >= 0
}
