package detection

import (
	"image"
	"sort"

	"github.com/ironsheep/barcode-tools-mcp/internal/imaging"
)

// BoundingBox is an axis-aligned rectangle in image coordinates.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect converts the box to an image.Rectangle.
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// Empty reports whether the box has no area.
func (b BoundingBox) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Component is one connected foreground blob of a mask.
type Component struct {
	Bounds BoundingBox `json:"bounds"`
	// Area is the area enclosed by the blob's outer boundary. Holes inside a
	// frame count toward it.
	Area int `json:"area"`
	// Pixels is the number of foreground pixels in the blob.
	Pixels int `json:"pixels"`
}

// point is a pixel position in mask space.
type point struct {
	X, Y int
}

// Locator finds the dominant foreground region of an image.
//
// The zero value is usable and applies imaging.DefaultKernelSize.
type Locator struct {
	// KernelSize is the structuring element side length for the gradient
	// and closing steps.
	KernelSize int
}

// NewLocator returns a Locator using the given kernel size. Sizes below 3
// fall back to imaging.DefaultKernelSize.
func NewLocator(kernelSize int) *Locator {
	if kernelSize < 3 {
		kernelSize = imaging.DefaultKernelSize
	}
	return &Locator{KernelSize: kernelSize}
}

// Locate returns the bounding box of the largest connected foreground region
// in img. It reports false when the mask is empty (for example a blank
// image).
func (l *Locator) Locate(img image.Image) (BoundingBox, bool) {
	comps := l.Components(img)
	if len(comps) == 0 {
		return BoundingBox{}, false
	}
	return comps[0].Bounds, true
}

// Components returns every connected foreground blob of img, largest first.
// Blobs of equal area keep their scan order.
func (l *Locator) Components(img image.Image) []Component {
	kernel := imaging.DefaultKernelSize
	if l != nil && l.KernelSize >= 3 {
		kernel = l.KernelSize
	}
	mask := imaging.GradientMask(img, kernel)
	comps := FindComponents(mask)

	origin := img.Bounds().Min
	for i := range comps {
		comps[i].Bounds.X += origin.X
		comps[i].Bounds.Y += origin.Y
	}
	sort.SliceStable(comps, func(i, j int) bool {
		return comps[i].Area > comps[j].Area
	})
	return comps
}

// FindComponents groups the non-zero pixels of mask into 8-connected
// components, in row-major order of each component's first pixel. Boxes are
// relative to the mask's own origin.
func FindComponents(mask *image.Gray) []Component {
	b := mask.Bounds()
	width, height := b.Dx(), b.Dy()

	visited := make([]bool, width*height)
	comps := make([]Component, 0)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if visited[y*width+x] || mask.Pix[y*mask.Stride+x] == 0 {
				continue
			}
			comps = append(comps, floodFill(mask, visited, x, y, width, height))
		}
	}
	return comps
}

// floodFill performs iterative flood-fill from a starting point, marking
// visited pixels and accumulating the component's extent.
//
// Uses a stack-based approach (not recursive) to avoid stack overflow
// on large regions. Uses 8-connectivity (includes diagonal neighbors).
func floodFill(mask *image.Gray, visited []bool, startX, startY, width, height int) Component {
	minX, minY := startX, startY
	maxX, maxY := startX, startY
	var pixels []point

	stack := []point{{X: startX, Y: startY}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.X < 0 || p.X >= width || p.Y < 0 || p.Y >= height {
			continue
		}
		idx := p.Y*width + p.X
		if visited[idx] || mask.Pix[p.Y*mask.Stride+p.X] == 0 {
			continue
		}
		visited[idx] = true
		pixels = append(pixels, p)

		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				stack = append(stack, point{X: p.X + dx, Y: p.Y + dy})
			}
		}
	}

	box := BoundingBox{X: minX, Y: minY, Width: maxX - minX + 1, Height: maxY - minY + 1}
	return Component{
		Bounds: box,
		Area:   enclosedArea(pixels, box),
		Pixels: len(pixels),
	}
}

// enclosedArea counts the cells of box not reachable from the box border
// without crossing a component pixel. Outside cells use 4-connectivity, the
// dual of the component's 8-connectivity.
func enclosedArea(pixels []point, box BoundingBox) int {
	w, h := box.Width, box.Height
	wall := make([]bool, w*h)
	for _, p := range pixels {
		wall[(p.Y-box.Y)*w+(p.X-box.X)] = true
	}

	reached := make([]bool, w*h)
	outside := 0
	stack := make([]point, 0, 2*(w+h))
	for x := 0; x < w; x++ {
		stack = append(stack, point{X: x, Y: 0}, point{X: x, Y: h - 1})
	}
	for y := 0; y < h; y++ {
		stack = append(stack, point{X: 0, Y: y}, point{X: w - 1, Y: y})
	}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.X < 0 || p.X >= w || p.Y < 0 || p.Y >= h {
			continue
		}
		idx := p.Y*w + p.X
		if wall[idx] || reached[idx] {
			continue
		}
		reached[idx] = true
		outside++
		stack = append(stack,
			point{X: p.X + 1, Y: p.Y}, point{X: p.X - 1, Y: p.Y},
			point{X: p.X, Y: p.Y + 1}, point{X: p.X, Y: p.Y - 1})
	}
	return w*h - outside
}
