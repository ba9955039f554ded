package detection

import (
	"image"

	"github.com/ironsheep/colorcard-mcp/internal/geometry"
)

// pixel is an integer pixel position relative to the mask origin.
type pixel struct {
	x, y int
}

// component is a connected set of dark pixels in a binary mask.
type component struct {
	pixels                 []pixel
	minX, minY, maxX, maxY int
	touchesBorder          bool
}

func (c *component) width() int  { return c.maxX - c.minX + 1 }
func (c *component) height() int { return c.maxY - c.minY + 1 }

// darkComponents groups the black (0) pixels of mask into 8-connected
// components. Components smaller than minPixels are dropped as noise.
func darkComponents(mask *image.Gray, minPixels int) []component {
	bounds := mask.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	labels := make([]int32, width*height)

	var comps []component
	var next int32
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if labels[y*width+x] != 0 || mask.Pix[y*mask.Stride+x] != 0 {
				continue
			}
			next++
			c := fillComponent(mask, labels, next, x, y, width, height)
			if len(c.pixels) >= minPixels {
				comps = append(comps, c)
			}
		}
	}
	return comps
}

// fillComponent collects the component containing (startX, startY) with an
// explicit stack, labelling every visited pixel with label.
func fillComponent(mask *image.Gray, labels []int32, label int32, startX, startY, width, height int) component {
	c := component{minX: startX, minY: startY, maxX: startX, maxY: startY}
	stack := []pixel{{startX, startY}}
	labels[startY*width+startX] = label

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		c.pixels = append(c.pixels, p)

		c.minX = min(c.minX, p.x)
		c.maxX = max(c.maxX, p.x)
		c.minY = min(c.minY, p.y)
		c.maxY = max(c.maxY, p.y)
		if p.x == 0 || p.y == 0 || p.x == width-1 || p.y == height-1 {
			c.touchesBorder = true
		}

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				nx, ny := p.x+dx, p.y+dy
				if nx < 0 || nx >= width || ny < 0 || ny >= height {
					continue
				}
				i := ny*width + nx
				if labels[i] != 0 || mask.Pix[ny*mask.Stride+nx] != 0 {
					continue
				}
				labels[i] = label
				stack = append(stack, pixel{nx, ny})
			}
		}
	}
	return c
}

// outline returns the outer boundary of the component with its holes
// filled, as pixel centers, together with the filled area in pixels.
//
// A marker's white cells are holes in its dark component. Filling them makes
// the boundary trace only the printed square, not the code inside it.
func (c *component) outline() ([]geometry.Point, int) {
	// One pixel of padding on every side keeps the exterior connected.
	w, h := c.width()+2, c.height()+2
	inside := make([]bool, w*h)
	for _, p := range c.pixels {
		inside[(p.y-c.minY+1)*w+(p.x-c.minX+1)] = true
	}

	exterior := make([]bool, w*h)
	exterior[0] = true
	stack := []pixel{{0, 0}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, d := range [4]pixel{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			nx, ny := p.x+d.x, p.y+d.y
			if nx < 0 || nx >= w || ny < 0 || ny >= h {
				continue
			}
			i := ny*w + nx
			if exterior[i] || inside[i] {
				continue
			}
			exterior[i] = true
			stack = append(stack, pixel{nx, ny})
		}
	}

	var boundary []geometry.Point
	area := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			if exterior[i] {
				continue
			}
			area++
			if exterior[i-1] || exterior[i+1] || exterior[i-w] || exterior[i+w] {
				boundary = append(boundary, geometry.Point{
					X: float64(x-1+c.minX) + 0.5,
					Y: float64(y-1+c.minY) + 0.5,
				})
			}
		}
	}
	return boundary, area
}
