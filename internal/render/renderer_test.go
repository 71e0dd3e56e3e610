package render

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	nchess "github.com/corentings/chess/v2"
)

func decodePNG(t *testing.T, raw []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	return img
}

func sameRGB(a color.Color, b color.RGBA) bool {
	r, g, bl, _ := a.RGBA()
	return uint8(r>>8) == b.R && uint8(g>>8) == b.G && uint8(bl>>8) == b.B
}

func TestRenderStartingPosition(t *testing.T) {
	board := nchess.NewGame().Position().Board()
	theme, _ := ThemeByID("wood")

	raw, err := NewRenderer().RenderPNG(context.Background(), board, Options{Theme: theme, SquareSize: 32, Check: nchess.NoSquare})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	img := decodePNG(t, raw)
	if got := img.Bounds().Dx(); got != 32*8+coordMargin {
		t.Fatalf("unexpected width %d", got)
	}

	// a3 is empty and dark; a white-side board puts it on column 0, row 5.
	px := img.At(coordMargin+16, 5*32+16)
	if !sameRGB(px, theme.Dark) {
		t.Fatalf("a3 should be the dark square colour, got %v", px)
	}
	// b3 is light.
	px = img.At(coordMargin+32+16, 5*32+16)
	if !sameRGB(px, theme.Light) {
		t.Fatalf("b3 should be the light square colour, got %v", px)
	}
}

func TestRenderFlippedForBlack(t *testing.T) {
	board := nchess.NewGame().Position().Board()
	theme := DefaultTheme()
	geo := geometry{size: 32, origin: image.Pt(coordMargin, 0), flip: true}
	a3 := nchess.NewSquare(nchess.FileA, nchess.Rank3)
	if r := geo.rect(a3); r.Min.X != coordMargin+7*32 || r.Min.Y != 2*32 {
		t.Fatalf("unexpected flipped rect %v", r)
	}

	raw, err := NewRenderer().RenderPNG(context.Background(), board, Options{
		Theme:       theme,
		Orientation: nchess.Black,
		SquareSize:  32,
		Check:       nchess.NoSquare,
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	img := decodePNG(t, raw)
	if px := img.At(coordMargin+7*32+16, 2*32+16); !sameRGB(px, theme.Dark) {
		t.Fatalf("flipped a3 should be dark, got %v", px)
	}
}

func TestRenderHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewRenderer().RenderPNG(ctx, nchess.NewGame().Position().Board(), Options{}); err == nil {
		t.Fatalf("expected context error")
	}
	if _, err := NewRenderer().RenderPNG(context.Background(), nil, Options{}); err == nil {
		t.Fatalf("expected nil board error")
	}
}

func TestThemes(t *testing.T) {
	all := Themes()
	if len(all) != 6 {
		t.Fatalf("expected 6 themes, got %d", len(all))
	}
	if all[0].ID != DefaultThemeID {
		t.Fatalf("default theme should come first, got %s", all[0].ID)
	}
	if _, ok := ThemeByID("  Purple "); !ok {
		t.Fatalf("theme lookup should ignore case and spaces")
	}
	if _, ok := ThemeByID("neon"); ok {
		t.Fatalf("unknown theme should not resolve")
	}
	if got := Hex(all[0].Dark); got != "#779952" {
		t.Fatalf("unexpected hex %s", got)
	}
	if _, err := ParseHex("#12345"); err == nil {
		t.Fatalf("short hex should fail")
	}
}

func TestPieceImagesAreCached(t *testing.T) {
	a, err := renderPieceImage(nchess.WhiteKnight, 40)
	if err != nil {
		t.Fatalf("render piece: %v", err)
	}
	b, err := renderPieceImage(nchess.WhiteKnight, 40)
	if err != nil {
		t.Fatalf("render piece: %v", err)
	}
	if a != b {
		t.Fatalf("expected cached image")
	}
	if _, err := renderPieceImage(nchess.BlackQueen, 40); err != nil {
		t.Fatalf("render black queen: %v", err)
	}
}
