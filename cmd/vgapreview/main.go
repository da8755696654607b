// vgapreview is a reference renderer collaborator: it polls the CFG core's
// VGA VRAM band (0xA0000-0xBFFFF) and blits it as an 8x8-cell CGA-palette
// bitmap. It is a thin, separate main package; the core package itself
// never imports ebiten (§6 of the spec describes the renderer purely as an
// observer of memory writes, not a core-package collaborator).
//
// Grounded on the teacher's video_backend_ebiten.go draw-loop shape.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later
package main

import (
	"fmt"
	"os"

	"github.com/hajimehoshi/ebiten/v2"

	core "github.com/intuitionamiga/cfgx86core/corex86"
)

const (
	vgaVRAMBase = 0xA0000
	cellsWide   = 80
	cellsHigh   = 25
	cellSize    = 8
	screenW     = cellsWide * cellSize
	screenH     = cellsHigh * cellSize
)

// cgaPalette is the 16-colour CGA palette, index = low nibble of each VRAM
// byte (text-mode attribute-style preview; this is a debugging aid, not a
// faithful VGA mode 13h renderer).
var cgaPalette = [16][3]byte{
	{0, 0, 0}, {0, 0, 170}, {0, 170, 0}, {0, 170, 170},
	{170, 0, 0}, {170, 0, 170}, {170, 85, 0}, {170, 170, 170},
	{85, 85, 85}, {85, 85, 255}, {85, 255, 85}, {85, 255, 255},
	{255, 85, 85}, {255, 85, 255}, {255, 255, 85}, {255, 255, 255},
}

type previewGame struct {
	mem *core.Memory
	img *ebiten.Image
}

func (g *previewGame) Update() error { return nil }

func (g *previewGame) Draw(screen *ebiten.Image) {
	if !g.mem.Dirty() {
		screen.DrawImage(g.img, nil)
		return
	}
	data := g.mem.GetData(vgaVRAMBase, cellsWide*cellsHigh)
	for cy := 0; cy < cellsHigh; cy++ {
		for cx := 0; cx < cellsWide; cx++ {
			c := cgaPalette[data[cy*cellsWide+cx]&0x0F]
			for py := 0; py < cellSize; py++ {
				for px := 0; px < cellSize; px++ {
					g.img.Set(cx*cellSize+px, cy*cellSize+py, rgbColor(c))
				}
			}
		}
	}
	g.mem.ClearDirty()
	screen.DrawImage(g.img, nil)
}

func (g *previewGame) Layout(outsideWidth, outsideHeight int) (int, int) {
	return screenW, screenH
}

func main() {
	cpu := core.NewCore()

	game := &previewGame{mem: cpu.Memory, img: ebiten.NewImage(screenW, screenH)}
	ebiten.SetWindowSize(screenW*2, screenH*2)
	ebiten.SetWindowTitle("VRAM preview")

	go func() {
		if err := cpu.Loop.Run(); err != nil {
			fmt.Fprintln(os.Stderr, "vgapreview: core run:", err)
		}
	}()

	if err := ebiten.RunGame(game); err != nil {
		fmt.Fprintln(os.Stderr, "vgapreview:", err)
		os.Exit(1)
	}
}

func rgbColor(c [3]byte) rgba { return rgba{c[0], c[1], c[2], 0xFF} }

type rgba struct{ r, g, b, a byte }

func (c rgba) RGBA() (r, g, b, a uint32) {
	return uint32(c.r) * 0x101, uint32(c.g) * 0x101, uint32(c.b) * 0x101, uint32(c.a) * 0x101
}
