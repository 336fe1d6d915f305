package renderer

import "github.com/richinsley/goblackhole/gpu"

// MaxBloomIterations caps the number of mip levels in the bloom chain.
const MaxBloomIterations = 8

// BloomChainLength is the number of levels i for which (w>>(i+1), h>>(i+1))
// is still at least one pixel, capped at MaxBloomIterations.
func BloomChainLength(width, height int) int {
	n := 0
	for n < MaxBloomIterations && width>>(n+1) > 0 && height>>(n+1) > 0 {
		n++
	}
	return n
}

// BloomChain keeps downsample and upsample targets in parallel slices since
// level i differs in size between them: Down[i] is (w>>(i+1), h>>(i+1)) and
// Up[i] is (w>>i, h>>i).
type BloomChain struct {
	Down []*gpu.Target
	Up   []*gpu.Target
}

// NewBloomChain allocates every level for a width x height viewport. Nothing
// stays allocated on error.
func NewBloomChain(dev gpu.Device, width, height int) (BloomChain, error) {
	n := BloomChainLength(width, height)
	c := BloomChain{
		Down: make([]*gpu.Target, 0, n),
		Up:   make([]*gpu.Target, 0, n),
	}
	for i := 0; i < n; i++ {
		down, err := gpu.NewTarget(dev, width>>(i+1), height>>(i+1))
		if err != nil {
			c.Destroy(dev)
			return BloomChain{}, err
		}
		c.Down = append(c.Down, down)

		up, err := gpu.NewTarget(dev, width>>i, height>>i)
		if err != nil {
			c.Destroy(dev)
			return BloomChain{}, err
		}
		c.Up = append(c.Up, up)
	}
	return c, nil
}

func (c *BloomChain) Len() int { return len(c.Down) }

func (c *BloomChain) Destroy(dev gpu.Device) {
	for _, t := range c.Down {
		t.Destroy(dev)
	}
	for _, t := range c.Up {
		t.Destroy(dev)
	}
	c.Down, c.Up = nil, nil
}
