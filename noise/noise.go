// Package noise precomputes the 3D simplex noise volume sampled by the
// accretion disk shading.
package noise

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	// Size is the edge length of the volume uploaded to the GPU.
	Size = 128
	// Domain is the noise-space length spanned by one edge of the volume.
	Domain float32 = 128.0

	permuteMod float32 = 289.0
)

// Generate3D returns the Size³ volume used by the renderer.
func Generate3D() []byte {
	return Generate(Size)
}

// Generate samples simplex noise at the centre of every cell of a size³ grid
// spanning Domain units per axis and quantizes it to bytes. Cells are ordered
// with x varying fastest, then y, then z.
func Generate(size int) []byte {
	if size <= 0 {
		return nil
	}
	data := make([]byte, 0, size*size*size)
	for z := 0; z < size; z++ {
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				n := Simplex3(SamplePoint(x, y, z, size))
				data = append(data, quantize(n))
			}
		}
	}
	return data
}

// SamplePoint returns the noise-space coordinate sampled for grid cell (x, y, z).
func SamplePoint(x, y, z, size int) mgl32.Vec3 {
	scale := Domain / float32(size)
	return mgl32.Vec3{
		(float32(x) + 0.5) * scale,
		(float32(y) + 0.5) * scale,
		(float32(z) + 0.5) * scale,
	}
}

func quantize(n float32) byte {
	v := n*0.5 + 0.5
	v = math32.Max(0, math32.Min(1, v))
	return byte(math32.Floor(v*255 + 0.5))
}

// Simplex3 evaluates Ashima-style 3D simplex noise. The result is nominally
// in [-1, 1].
func Simplex3(v mgl32.Vec3) float32 {
	const (
		c1 float32 = 1.0 / 6.0
		c2 float32 = 1.0 / 3.0
	)

	// skew onto the simplex grid
	s := (v[0] + v[1] + v[2]) * c2
	i := floor3(v.Add(splat3(s)))
	t := (i[0] + i[1] + i[2]) * c1
	x0 := v.Sub(i).Add(splat3(t))

	// corner ordering
	g := mgl32.Vec3{step(x0[1], x0[0]), step(x0[2], x0[1]), step(x0[0], x0[2])}
	l := splat3(1).Sub(g)
	lzxy := mgl32.Vec3{l[2], l[0], l[1]}
	i1 := mgl32.Vec3{math32.Min(g[0], lzxy[0]), math32.Min(g[1], lzxy[1]), math32.Min(g[2], lzxy[2])}
	i2 := mgl32.Vec3{math32.Max(g[0], lzxy[0]), math32.Max(g[1], lzxy[1]), math32.Max(g[2], lzxy[2])}

	x1 := x0.Sub(i1).Add(splat3(c1))
	x2 := x0.Sub(i2).Add(splat3(2 * c1))
	x3 := x0.Sub(splat3(1)).Add(splat3(3 * c1))

	// hash the four corners
	i = mgl32.Vec3{mod289(i[0]), mod289(i[1]), mod289(i[2])}
	p := permute(mgl32.Vec4{i[2], i[2] + i1[2], i[2] + i2[2], i[2] + 1})
	p = permute(p.Add(mgl32.Vec4{i[1], i[1] + i1[1], i[1] + i2[1], i[1] + 1}))
	p = permute(p.Add(mgl32.Vec4{i[0], i[0] + i1[0], i[0] + i2[0], i[0] + 1}))

	// gradients on a 7x7 grid mapped onto an octahedron
	const n7 float32 = 1.0 / 7.0
	ns := mgl32.Vec3{2 * n7, 0.5*n7 - 1, n7}

	var x, y, h mgl32.Vec4
	for k := 0; k < 4; k++ {
		j := p[k] - math32.Floor(p[k]*ns[2]*ns[2])*49
		xk := math32.Floor(j * ns[2])
		yk := math32.Floor(j - xk*7)
		x[k] = xk*ns[0] + ns[1]
		y[k] = yk*ns[0] + ns[1]
		h[k] = 1 - math32.Abs(x[k]) - math32.Abs(y[k])
	}

	b0 := mgl32.Vec4{x[0], x[1], y[0], y[1]}
	b1 := mgl32.Vec4{x[2], x[3], y[2], y[3]}
	s0 := floor4(b0).Mul(2).Add(splat4(1))
	s1 := floor4(b1).Mul(2).Add(splat4(1))
	var sh mgl32.Vec4
	for k := 0; k < 4; k++ {
		sh[k] = -step(h[k], 0)
	}

	a0 := mgl32.Vec4{
		b0[0] + s0[0]*sh[0],
		b0[2] + s0[2]*sh[0],
		b0[1] + s0[1]*sh[1],
		b0[3] + s0[3]*sh[1],
	}
	a1 := mgl32.Vec4{
		b1[0] + s1[0]*sh[2],
		b1[2] + s1[2]*sh[2],
		b1[1] + s1[1]*sh[3],
		b1[3] + s1[3]*sh[3],
	}

	p0 := mgl32.Vec3{a0[0], a0[1], h[0]}
	p1 := mgl32.Vec3{a0[2], a0[3], h[1]}
	p2 := mgl32.Vec3{a1[0], a1[1], h[2]}
	p3 := mgl32.Vec3{a1[2], a1[3], h[3]}

	norm := taylorInvSqrt(mgl32.Vec4{p0.Dot(p0), p1.Dot(p1), p2.Dot(p2), p3.Dot(p3)})
	p0 = p0.Mul(norm[0])
	p1 = p1.Mul(norm[1])
	p2 = p2.Mul(norm[2])
	p3 = p3.Mul(norm[3])

	// squared falloff per corner
	var m mgl32.Vec4
	for k, d := range [4]float32{x0.Dot(x0), x1.Dot(x1), x2.Dot(x2), x3.Dot(x3)} {
		mk := math32.Max(0.6-d, 0)
		mk *= mk
		m[k] = mk * mk
	}

	return 42 * m.Dot(mgl32.Vec4{p0.Dot(x0), p1.Dot(x1), p2.Dot(x2), p3.Dot(x3)})
}

func mod289(x float32) float32 {
	return x - math32.Floor(x/permuteMod)*permuteMod
}

func permute(v mgl32.Vec4) mgl32.Vec4 {
	for k := range v {
		v[k] = mod289((v[k]*34 + 1) * v[k])
	}
	return v
}

func taylorInvSqrt(r mgl32.Vec4) mgl32.Vec4 {
	return splat4(1.79284291400159).Sub(r.Mul(0.85373472095314))
}

// step mirrors GLSL step(edge, x).
func step(edge, x float32) float32 {
	if x < edge {
		return 0
	}
	return 1
}

func splat3(v float32) mgl32.Vec3 { return mgl32.Vec3{v, v, v} }
func splat4(v float32) mgl32.Vec4 { return mgl32.Vec4{v, v, v, v} }

func floor3(v mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{math32.Floor(v[0]), math32.Floor(v[1]), math32.Floor(v[2])}
}

func floor4(v mgl32.Vec4) mgl32.Vec4 {
	return mgl32.Vec4{math32.Floor(v[0]), math32.Floor(v[1]), math32.Floor(v[2]), math32.Floor(v[3])}
}
