package render

import (
	"bytes"
	"embed"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

//go:embed assets/pieces/*.svg
var pieceFiles embed.FS

type pieceCacheKey struct {
	piece nchess.Piece
	size  int
}

var (
	pieceCache   = map[pieceCacheKey]image.Image{}
	pieceCacheMu sync.RWMutex
)

const (
	whitePieceFill  = "#ffffff"
	blackPieceFill  = "#2b2b2b"
	pieceOutline    = "#000000"
	blackPieceInner = "#e6e6e6"
)

func renderPieceImage(piece nchess.Piece, size int) (image.Image, error) {
	key := pieceCacheKey{piece: piece, size: size}

	pieceCacheMu.RLock()
	if img, ok := pieceCache[key]; ok {
		pieceCacheMu.RUnlock()
		return img, nil
	}
	pieceCacheMu.RUnlock()

	name := pieceAssetName(piece.Type())
	data, err := pieceFiles.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read piece asset %s: %w", name, err)
	}

	icon, err := oksvg.ReadIconStream(bytes.NewReader(colorize(data, piece.Color())))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg %s: %w", name, err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)

	pieceCacheMu.Lock()
	pieceCache[key] = img
	pieceCacheMu.Unlock()

	return img, nil
}

// colorize fills the FILL/STROKE placeholders of a piece template.
func colorize(svg []byte, c nchess.Color) []byte {
	fill, stroke := whitePieceFill, pieceOutline
	if c == nchess.Black {
		fill = blackPieceFill
	}
	out := bytes.ReplaceAll(svg, []byte(`fill="STROKE"`), []byte(`fill="`+accentFor(c)+`"`))
	out = bytes.ReplaceAll(out, []byte("FILL"), []byte(fill))
	return bytes.ReplaceAll(out, []byte("STROKE"), []byte(stroke))
}

func accentFor(c nchess.Color) string {
	if c == nchess.Black {
		return blackPieceInner
	}
	return pieceOutline
}

func pieceAssetName(t nchess.PieceType) string {
	var suffix string
	switch t {
	case nchess.King:
		suffix = "K"
	case nchess.Queen:
		suffix = "Q"
	case nchess.Rook:
		suffix = "R"
	case nchess.Bishop:
		suffix = "B"
	case nchess.Knight:
		suffix = "N"
	default:
		suffix = "P"
	}
	return "assets/pieces/" + suffix + ".svg"
}
