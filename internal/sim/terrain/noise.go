package terrain

import "math"

// NoiseField is seeded 2D value noise: hashed lattice values smoothed with
// a quintic fade. Every sample is a pure function of (seed, x, z).
type NoiseField struct {
	seed int64
}

func NewNoiseField(seed int64) *NoiseField {
	return &NoiseField{seed: seed}
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func hash2(seed int64, x, z int64) uint64 {
	v := uint64(seed) ^ uint64(x)*0x9e3779b97f4a7c15 ^ uint64(z)*0xbf58476d1ce4e5b9
	return mix64(v)
}

func hash3(seed int64, x, y, z int64) uint64 {
	v := uint64(seed) ^ uint64(x)*0x9e3779b97f4a7c15 ^ uint64(y)*0xc2b2ae3d27d4eb4f ^ uint64(z)*0xbf58476d1ce4e5b9
	return mix64(v)
}

func lattice(seed int64, x, z int64) float64 {
	return float64(hash2(seed, x, z)&0xFFFFFFFF) / float64(0xFFFFFFFF)
}

// fade is the smoothstep-like quintic 6t^5 - 15t^4 + 10t^3.
func fade(t float64) float64 {
	return t * t * t * (t*(t*6-15) + 10)
}

func lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

// At samples a single octave at (x, z). Result is in [0, 1].
func (n *NoiseField) At(x, z float64) float64 {
	x0 := math.Floor(x)
	z0 := math.Floor(z)
	fx := fade(x - x0)
	fz := fade(z - z0)

	ix0, iz0 := int64(x0), int64(z0)
	v00 := lattice(n.seed, ix0, iz0)
	v10 := lattice(n.seed, ix0+1, iz0)
	v01 := lattice(n.seed, ix0, iz0+1)
	v11 := lattice(n.seed, ix0+1, iz0+1)

	return lerp(lerp(v00, v10, fx), lerp(v01, v11, fx), fz)
}

// Fractal sums octaves with the given persistence and lacunarity,
// normalized back to [0, 1].
func (n *NoiseField) Fractal(x, z float64, octaves int, persistence, lacunarity float64) float64 {
	amplitude := 1.0
	frequency := 1.0
	sum := 0.0
	norm := 0.0
	for i := 0; i < octaves; i++ {
		oct := NoiseField{seed: n.seed + int64(i)*131}
		sum += oct.At(x*frequency, z*frequency) * amplitude
		norm += amplitude
		amplitude *= persistence
		frequency *= lacunarity
	}
	if norm == 0 {
		return 0
	}
	return sum / norm
}

func lattice3(seed int64, x, y, z int64) float64 {
	return float64(hash3(seed, x, y, z)&0xFFFFFFFF) / float64(0xFFFFFFFF)
}

// noise3 is trilinear 3D value noise used for cave carving.
func noise3(seed int64, x, y, z float64) float64 {
	x0 := math.Floor(x)
	y0 := math.Floor(y)
	z0 := math.Floor(z)
	fx := fade(x - x0)
	fy := fade(y - y0)
	fz := fade(z - z0)

	ix, iy, iz := int64(x0), int64(y0), int64(z0)
	v000 := lattice3(seed, ix, iy, iz)
	v100 := lattice3(seed, ix+1, iy, iz)
	v010 := lattice3(seed, ix, iy+1, iz)
	v110 := lattice3(seed, ix+1, iy+1, iz)
	v001 := lattice3(seed, ix, iy, iz+1)
	v101 := lattice3(seed, ix+1, iy, iz+1)
	v011 := lattice3(seed, ix, iy+1, iz+1)
	v111 := lattice3(seed, ix+1, iy+1, iz+1)

	i00 := lerp(v000, v100, fx)
	i10 := lerp(v010, v110, fx)
	i01 := lerp(v001, v101, fx)
	i11 := lerp(v011, v111, fx)
	return lerp(lerp(i00, i10, fy), lerp(i01, i11, fy), fz)
}
